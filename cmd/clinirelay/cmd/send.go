package cmd

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/harunnryd/clinirelay/pkg/publisher"
	"github.com/harunnryd/clinirelay/pkg/stages"
)

var (
	sendURL         string
	sendFile        string
	sendMode        string
	sendSampleRate  int
	sendTranslateTo string
)

// sendCmd pushes a raw 16-bit mono PCM file to the voice channel.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a raw PCM clip to the voice channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendFile == "" {
			return errors.New("--file is required")
		}
		raw, err := os.ReadFile(sendFile)
		if err != nil {
			printError("read clip", err)
			return err
		}
		payload, err := buildVoicePayload(raw, sendMode, sendSampleRate, sendTranslateTo)
		if err != nil {
			printError("build payload", err)
			return err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.Dial(sendURL, nil)
		if err != nil {
			printError("dial", err)
			return err
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			printError("send", err)
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for {
			_, reply, err := conn.ReadMessage()
			if err != nil {
				printError("await reply", err)
				return err
			}
			if string(reply) == string(publisher.HeartbeatMessage) {
				continue
			}
			fmt.Println(string(reply))
			return nil
		}
	},
}

func buildVoicePayload(raw []byte, mode string, sampleRate int, target string) (stages.VoicePayload, error) {
	if sampleRate <= 0 {
		return stages.VoicePayload{}, fmt.Errorf("--sample-rate must be positive, got %d", sampleRate)
	}
	if len(raw) == 0 {
		return stages.VoicePayload{}, errors.New("clip is empty")
	}
	p := stages.VoicePayload{
		Action:     stages.ActionTranscribeTranslate,
		Audio:      base64.StdEncoding.EncodeToString(raw),
		SampleRate: sampleRate,
		Mode:       mode,
		Duration:   float64(len(raw)/2) / float64(sampleRate),
	}
	if target != "" {
		p.TranslateTo = &target
	}
	return p, nil
}

func init() {
	sendCmd.Flags().StringVar(&sendURL, "url", "ws://localhost:8081/ws", "voice channel websocket url")
	sendCmd.Flags().StringVar(&sendFile, "file", "", "raw little-endian int16 mono PCM file")
	sendCmd.Flags().StringVar(&sendMode, "mode", "c", "transcription mode: c (cloud) or l (local)")
	sendCmd.Flags().IntVar(&sendSampleRate, "sample-rate", 16000, "clip sample rate in Hz")
	sendCmd.Flags().StringVar(&sendTranslateTo, "translate-to", "", "target language, empty for none")
	rootCmd.AddCommand(sendCmd)
}
