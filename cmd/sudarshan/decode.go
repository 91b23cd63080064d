package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sudarshan/internal/platform/dhan"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode one binary feed frame and print the tick JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDecode,
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	frame, err := parseHex(strings.Join(args, ""))
	if err != nil {
		return err
	}

	tick, err := dhan.Decode(frame)
	if errors.Is(err, dhan.ErrUnknownPacket) {
		h, herr := dhan.ParseHeader(frame)
		if herr != nil {
			return fmt.Errorf("decode: %w", herr)
		}
		return fmt.Errorf("decode: unknown packet type %d (segment %s, security id %d, declared length %d)",
			h.Type, dhan.SegmentName(h.Segment), h.SecurityID, h.Length)
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	out, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("decode: marshal: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// parseHex accepts plain hex with optional 0x prefix and any whitespace or
// colon separators.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode: invalid hex: %w", err)
	}
	return b, nil
}
