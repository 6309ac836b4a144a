package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// narration can wait on the LLM and several synthesis calls
const clientTimeout = 2 * time.Minute

func (c *CLI) newSpeakCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speak [text...]",
		Short: "Ask the running agent to speak text, the clipboard or an LLM answer",
		Example: `  murmur speak "Hello there."
  murmur speak --clipboard
  murmur speak --ask "Summarize the news in one sentence"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useClipboard, _ := cmd.Flags().GetBool("clipboard")
			prompt, _ := cmd.Flags().GetString("ask")

			switch {
			case useClipboard && prompt != "":
				return fmt.Errorf("--clipboard and --ask are mutually exclusive")
			case useClipboard:
				if len(args) > 0 {
					return fmt.Errorf("--clipboard takes no text arguments")
				}
				return c.request(cmd, http.MethodPost, "/speak_clipboard", nil)
			case prompt != "":
				if len(args) > 0 {
					return fmt.Errorf("--ask takes no text arguments")
				}
				return c.request(cmd, http.MethodPost, "/speak_ollama", map[string]string{"prompt": prompt})
			}

			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("nothing to speak")
			}
			return c.request(cmd, http.MethodPost, "/speak", map[string]string{"text": text})
		},
	}
	cmd.Flags().Bool("clipboard", false, "Speak the clipboard contents")
	cmd.Flags().String("ask", "", "Speak the local LLM's answer to this prompt")
	return cmd
}

func (c *CLI) newControlCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <handle>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodPost, "/"+name+"/"+args[0], nil)
		},
	}
}

func (c *CLI) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [handle]",
		Short: "Show one playback, or every tracked playback",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/status"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			return c.request(cmd, http.MethodGet, path, nil)
		},
	}
}

// request calls the running agent and pretty-prints its JSON reply to stdout
func (c *CLI) request(cmd *cobra.Command, method, path string, body any) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()

	url := "http://" + cfg.ListenAddr + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("calling agent", "method", method, "url", url)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", cfg.ListenAddr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (%s)", e.Error, e.Kind)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, bytes.TrimSpace(data), "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(data)
	}
	pretty.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(pretty.Bytes())
	return err
}
