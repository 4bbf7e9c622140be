package session

import (
	"context"
	"fmt"

	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/transcript"
)

// ClearConfirmedArg marks a clear request the caller already confirmed.
const ClearConfirmedArg = "confirmed"

// SpeakerList is the payload of the speakers command.
type SpeakerList struct {
	Selected string               `json:"selected"`
	Speakers []transcript.Speaker `json:"speakers"`
}

// ParseRequest maps an IPC request onto a command. Queries (status,
// speakers, settings) are not commands and return ErrUnknownCommand.
func ParseRequest(req ipc.Request) (Command, error) {
	switch req.Command {
	case "toggle":
		return Toggle{}, nil
	case "press":
		return Press{}, nil
	case "release":
		return Release{}, nil
	case "mode":
		mode, err := fsm.ParseMode(req.Arg(0))
		if err != nil {
			return nil, err
		}
		return SetMode{Mode: mode}, nil
	case "speaker":
		return SelectSpeaker{Choice: req.Arg(0)}, nil
	case "speaker-add":
		return AddSpeaker{Name: req.Arg(0)}, nil
	case "set":
		if len(req.Args) < 2 {
			return nil, fmt.Errorf("set requires <key> <value>")
		}
		return ChangeSetting{Key: req.Arg(0), Value: req.Arg(1)}, nil
	case "clear":
		if req.Arg(0) != ClearConfirmedArg {
			return nil, ErrConfirmationRequired
		}
		return Clear{Confirmer: transcript.ConfirmFunc(func(context.Context, string) (bool, error) {
			return true, nil
		})}, nil
	case "copy":
		return Copy{}, nil
	case "export":
		return Export{Path: req.Arg(0)}, nil
	case "pair":
		return Pair{Name: req.Arg(0)}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, req.Command)
	}
}

// Handle answers one IPC request for the owner process.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		snap := c.Snapshot()
		return c.respond(Reply{Message: snap.Status.Text, Payload: snap}, nil)
	case "speakers":
		return c.respond(Reply{Payload: SpeakerList{
			Selected: c.Snapshot().Speaker,
			Speakers: c.deps.Speakers.All(),
		}}, nil)
	case "settings":
		snap := c.Snapshot()
		return c.respond(Reply{Message: snap.Settings.String(), Payload: snap.Settings}, nil)
	}

	cmd, err := ParseRequest(req)
	if err != nil {
		return c.respond(Reply{}, err)
	}
	reply, err := c.Do(ctx, cmd)
	if err != nil {
		c.logger.Warn("command failed", "command", req.Command, "error", err)
	}
	return c.respond(reply, err)
}

func (c *Controller) respond(reply Reply, err error) ipc.Response {
	resp := ipc.Response{OK: err == nil, State: string(c.Snapshot().State), Message: reply.Message}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if reply.Payload == nil {
		return resp
	}
	withPayload, encodeErr := resp.WithPayload(reply.Payload)
	if encodeErr != nil {
		c.logger.Error("encode IPC payload", "error", encodeErr)
		return resp
	}
	return withPayload
}
