package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var invokeFlags struct {
	session string
	params  string
	pairs   []string
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool>",
	Short: "Invoke one pipeline tool against a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoke,
}

func init() {
	f := invokeCmd.Flags()
	f.StringVar(&invokeFlags.session, "session", "", "Session key (required)")
	f.StringVar(&invokeFlags.params, "params", "", "Tool parameters as a JSON object")
	f.StringArrayVar(&invokeFlags.pairs, "param", nil, "One parameter as key=value (repeatable; values stay strings)")

	_ = invokeCmd.MarkFlagRequired("session")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if invokeFlags.params != "" {
		if err := json.Unmarshal([]byte(invokeFlags.params), &params); err != nil {
			return fmt.Errorf("parse --params: %w", err)
		}
	}
	for _, pair := range invokeFlags.pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("--param %q: expected key=value", pair)
		}
		if params == nil {
			params = make(map[string]any)
		}
		params[key] = value
	}

	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	res := coord.Invoke(cmd.Context(), invokeFlags.session, args[0], params)
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
