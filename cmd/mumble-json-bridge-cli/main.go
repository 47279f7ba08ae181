// mumble-json-bridge-cli is the standalone client tool: it sends one
// envelope (read from -j/--json or stdin) to a running broker and
// prints the reply. An "operation" message_type is executed locally by
// internal/operation, issuing each of its calls through a Session.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mumble-voip/mumble-json-bridge/internal/config"
	"github.com/mumble-voip/mumble-json-bridge/internal/operation"
	"github.com/mumble-voip/mumble-json-bridge/internal/pipe"
	"github.com/mumble-voip/mumble-json-bridge/internal/session"
	"github.com/spf13/pflag"
)

// Exit codes per spec §6.
const (
	exitSuccess         = 0
	exitTimeout         = 2
	exitOperationFailed = 3
	exitOther           = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	jsonFlag := pflag.StringP("json", "j", "", "the JSON message to send")
	readTimeout := pflag.IntP("read-timeout", "r", 1000, "the timeout for read operations (in ms)")
	writeTimeout := pflag.IntP("write-timeout", "w", 100, "the timeout for write operations (in ms)")
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides "+config.EnvVar+")")
	help := pflag.BoolP("help", "h", false, "produces this help message")
	pflag.Parse()

	if *help {
		fmt.Fprintln(os.Stderr, "Command-line interface for the Mumble JSON bridge")
		pflag.PrintDefaults()
		return exitSuccess
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return exitOther
	}
	if !pflag.CommandLine.Changed("read-timeout") && cfg.ReadTimeoutMS != 0 {
		*readTimeout = cfg.ReadTimeoutMS
	}
	if !pflag.CommandLine.Changed("write-timeout") && cfg.WriteTimeoutMS != 0 {
		*writeTimeout = cfg.WriteTimeoutMS
	}

	raw, err := readInput(*jsonFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return exitOther
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return exitOther
	}

	reply, code := execute(envelope, cfg, *readTimeout, *writeTimeout)
	if code != exitSuccess {
		return code
	}

	encoded, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return exitOther
	}
	fmt.Println(string(encoded))
	return exitSuccess
}

// execute dispatches an envelope's message_type the way the original
// JSONInstruction::execute does: api_call goes straight through a
// Session, operation is handed to the local interpreter, anything else
// is a hard CLI error distinct from a bridge-side InvalidMessage.
func execute(envelope map[string]any, cfg *config.Config, readTimeoutMS, writeTimeoutMS int) (map[string]any, int) {
	kind, _ := envelope["message_type"].(string)

	sess, err := session.New(
		session.WithPipeDir(cfg.PipeDir),
		session.WithReadTimeoutMS(readTimeoutMS),
		session.WithWriteTimeoutMS(writeTimeoutMS),
	)
	if err != nil {
		return errorExit(err)
	}
	defer sess.Close()

	switch kind {
	case "api_call":
		reply, err := sess.Process(envelope)
		if err != nil {
			return errorExit(err)
		}
		return reply, exitSuccess

	case "operation":
		body, _ := envelope["message"].(map[string]any)
		script, err := operation.ParseScript(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR]: Operation failed: %v\n", err)
			return nil, exitOperationFailed
		}
		reply, err := operation.Run(script, sess.Process)
		if err != nil {
			if errors.Is(err, pipe.ErrTimeout) {
				return errorExit(err)
			}
			fmt.Fprintf(os.Stderr, "[ERROR]: Operation failed: %v\n", err)
			return nil, exitOperationFailed
		}
		return reply, exitSuccess

	default:
		fmt.Fprintf(os.Stderr, "[ERROR]: Unknown \"message_type\" option %q\n", kind)
		return nil, exitOther
	}
}

func errorExit(err error) (map[string]any, int) {
	if errors.Is(err, pipe.ErrTimeout) {
		fmt.Fprintln(os.Stderr, "[ERROR]: The operation timed out (Are you sure the JSON Bridge is running?)")
		return nil, exitTimeout
	}
	fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
	return nil, exitOther
}

func readInput(jsonFlag string) ([]byte, error) {
	if jsonFlag != "" {
		return []byte(jsonFlag), nil
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, os.Stdin); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return []byte(strings.TrimSpace(buf.String())), nil
}
