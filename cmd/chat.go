package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"salesbot/pkg/bus"
	"salesbot/pkg/channel/console"
	"salesbot/pkg/config"
	"salesbot/pkg/gateway"
	"salesbot/pkg/logger"
	"salesbot/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var (
	chatText   string
	chatTenant string
	chatLang   string
	chatName   string
	chatPlain  bool
)

// chatCmd talks to the bot from the terminal as if it were a customer.
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message or start a local customer chat",
	Long:  "Loads salesbot configuration and runs the full dialog stack against the console channel: one message, an interactive chat, or line-by-line stdin with --plain.",
	Run: func(cmd *cobra.Command, args []string) {
		text := resolveChatText(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		// The TUI owns the terminal; only errors are worth interleaving with it.
		if !chatPlain && strings.TrimSpace(cfg.Logging.Level) == "" {
			cfg.Logging.Level = "error"
		}
		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.chat")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := gateway.NewRuntime(ctx, cfg, log)
		if err != nil {
			fmt.Printf("failed to initialize dialog runtime: %v\n", err)
			return
		}
		defer rt.Close()

		tenant := cfg.Tenant(chatTenant)
		session, err := console.NewSession(rt.Handle, console.Options{
			TenantID:   tenant.ID,
			Lang:       chatLang,
			SenderName: chatName,
		}, log)
		if err != nil {
			fmt.Printf("failed to start console session: %v\n", err)
			return
		}
		defer session.Close()

		if chatPlain {
			if text != "" {
				reply, err := session.Send(ctx, text)
				if err != nil {
					fmt.Printf("request failed: %v\n", err)
					return
				}
				console.WriteReply(os.Stdout, reply)
				return
			}
			if err := session.RunLines(ctx, os.Stdin, os.Stdout, "🙋 "); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
			return
		}

		info := chat.Info{
			TenantID:   tenant.ID,
			TenantName: tenant.Name,
			Lang:       sessionLang(chatLang, tenant),
			AI:         cfg.AI.Enabled,
		}
		if text != "" {
			err = chat.RunOneShot(ctx, session.Send, text, info)
		} else {
			err = chat.RunInteractive(ctx, session.Send, info)
		}
		if err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatText, "message", "m", "", "message text to send")
	chatCmd.Flags().StringVarP(&chatTenant, "tenant", "t", "", "tenant id (defaults to dialog.default_tenant)")
	chatCmd.Flags().StringVarP(&chatLang, "lang", "l", "", "conversation language: ru or kk (defaults to the tenant language)")
	chatCmd.Flags().StringVar(&chatName, "name", "", "customer name recorded on leads")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "read messages line by line from stdin without the TUI")
}

func resolveChatText(args []string) string {
	if value := strings.TrimSpace(chatText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func sessionLang(flag string, tenant config.TenantConfig) string {
	if strings.TrimSpace(flag) != "" {
		return bus.ParseLang(flag)
	}

	return bus.ParseLang(tenant.Lang)
}
