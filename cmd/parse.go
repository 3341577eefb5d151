package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"salesbot/pkg/bus"
	"salesbot/pkg/intent"

	"github.com/spf13/cobra"
)

var parseLang string

// parsedView is the JSON shape printed by the parse command.
type parsedView struct {
	Lang     string       `json:"lang"`
	Intent   intent.Tag   `json:"intent"`
	Fallback bool         `json:"fallback,omitempty"`
	Query    string       `json:"query,omitempty"`
	Entities entitiesView `json:"entities"`
}

type entitiesView struct {
	SKU      string  `json:"sku,omitempty"`
	Qty      int     `json:"qty,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Name     string  `json:"name,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`
}

// parseCmd classifies text offline so intent rules can be checked without a bot.
var parseCmd = &cobra.Command{
	Use:   "parse [message]",
	Short: "Print the intent and entities recognized in a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeParsed(cmd.OutOrStdout(), strings.Join(args, " "), parseLang)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parseLang, "lang", "l", bus.LangRU, "message language: ru or kk")
}

func writeParsed(w io.Writer, text string, lang string) error {
	lang = bus.ParseLang(lang)
	parsed := intent.Parse(text, lang)

	view := parsedView{
		Lang:     lang,
		Intent:   parsed.Tag,
		Fallback: parsed.Fallback,
		Query:    parsed.Query,
		Entities: entitiesView{
			SKU:      parsed.Entities.SKU,
			Qty:      parsed.Entities.Qty,
			Unit:     parsed.Entities.Unit,
			Name:     parsed.Entities.Name,
			MaxPrice: parsed.Entities.MaxPrice,
		},
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(view); err != nil {
		return fmt.Errorf("encode parse result: %w", err)
	}

	return nil
}
