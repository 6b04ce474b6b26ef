package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/harunnryd/clinirelay/pkg/publisher"
)

var (
	listenURL        string
	listenHeartbeats bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Subscribe to a channel and print every message",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := websocket.DefaultDialer.Dial(listenURL, nil)
		if err != nil {
			printError("dial", err)
			return err
		}
		defer conn.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				printError("read", err)
				return err
			}
			if !listenHeartbeats && string(msg) == string(publisher.HeartbeatMessage) {
				continue
			}
			fmt.Fprintln(os.Stdout, string(msg))
		}
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenURL, "url", "ws://localhost:6081/ws", "channel websocket url")
	listenCmd.Flags().BoolVar(&listenHeartbeats, "heartbeats", false, "print heartbeat messages too")
	rootCmd.AddCommand(listenCmd)
}
