package recognition

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeOptions renders session options as the stream's first message payload.
func EncodeOptions(opts Options) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"language":        opts.Language,
		"continuous":      opts.Continuous,
		"interimResults":  opts.InterimResults,
		"maxAlternatives": opts.MaxAlternatives,
		"sampleRateHertz": opts.SampleRateHertz,
	})
}

// DecodeOptions is the inverse of EncodeOptions.
func DecodeOptions(msg *structpb.Struct) Options {
	fields := msg.GetFields()
	return Options{
		Language:        fields["language"].GetStringValue(),
		Continuous:      fields["continuous"].GetBoolValue(),
		InterimResults:  fields["interimResults"].GetBoolValue(),
		MaxAlternatives: int(fields["maxAlternatives"].GetNumberValue()),
		SampleRateHertz: int(fields["sampleRateHertz"].GetNumberValue()),
	}
}

// EncodeEvent renders one event as a server response message.
func EncodeEvent(ev Event) (*structpb.Struct, error) {
	results := make([]any, 0, len(ev.Results))
	for _, r := range ev.Results {
		alts := make([]any, 0, len(r.Alternatives))
		for _, a := range r.Alternatives {
			alts = append(alts, map[string]any{
				"transcript": a.Transcript,
				"confidence": a.Confidence,
			})
		}
		results = append(results, map[string]any{
			"isFinal":      r.IsFinal,
			"alternatives": alts,
		})
	}
	return structpb.NewStruct(map[string]any{
		"type":        string(ev.Kind),
		"resultIndex": ev.ResultIndex,
		"code":        ev.Code,
		"results":     results,
	})
}

// DecodeEvent parses a server response message.
func DecodeEvent(msg *structpb.Struct) (Event, error) {
	fields := msg.GetFields()
	kind := EventKind(fields["type"].GetStringValue())
	switch kind {
	case EventStart, EventEnd, EventResult, EventError:
	default:
		return Event{}, fmt.Errorf("unknown recognition event type %q", kind)
	}

	ev := Event{
		Kind:        kind,
		ResultIndex: int(fields["resultIndex"].GetNumberValue()),
		Code:        fields["code"].GetStringValue(),
	}
	for _, rv := range fields["results"].GetListValue().GetValues() {
		rf := rv.GetStructValue().GetFields()
		result := Result{IsFinal: rf["isFinal"].GetBoolValue()}
		for _, av := range rf["alternatives"].GetListValue().GetValues() {
			af := av.GetStructValue().GetFields()
			result.Alternatives = append(result.Alternatives, Alternative{
				Transcript: af["transcript"].GetStringValue(),
				Confidence: af["confidence"].GetNumberValue(),
			})
		}
		ev.Results = append(ev.Results, result)
	}
	return ev, nil
}
