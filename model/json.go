package model

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/hicann/fftsplus/core"
)

// Raw JSON structures matching the task description file format.

type taskJSON struct {
	Name     string            `json:"name"`
	Budgets  Budgets           `json:"budgets"`
	Contexts []json.RawMessage `json:"contexts"`
}

type kindJSON struct {
	Kind string `json:"kind"`
}

// newContext returns an empty variant for kind.
func newContext(kind Kind) (Context, error) {
	switch kind {
	case KindAICore, KindAIV, KindMixAIC, KindMixAIV:
		return &Compute{Engine: kind}, nil
	case KindAICPU:
		return &Aicpu{}, nil
	case KindSDMA:
		return &SDMA{}, nil
	case KindData:
		return &Data{}, nil
	case KindCondSwitch:
		return &CondSwitch{}, nil
	case KindCaseSwitch:
		return &CaseSwitch{}, nil
	case KindCaseDefault:
		return &CaseDefault{}, nil
	case KindLabel:
		return &Label{}, nil
	case KindAtStart:
		return &AtStart{}, nil
	case KindAtEnd:
		return &AtEnd{}, nil
	case KindNotify:
		return &Notify{}, nil
	case KindWriteValue:
		return &WriteValue{}, nil
	case KindDSA:
		return &DSA{}, nil
	case KindCachePersist:
		return &CachePersist{}, nil
	}
	return nil, core.ParamInvalidf("no description variant for kind %s", kind)
}

// DecodeTask reads a JSON task description.
func DecodeTask(r io.Reader) (*Task, error) {
	var tj taskJSON
	if err := json.NewDecoder(r).Decode(&tj); err != nil {
		return nil, core.ParamInvalidf("parsing task JSON: %v", err)
	}

	task := &Task{Name: tj.Name, Budgets: tj.Budgets, Contexts: make([]Context, 0, len(tj.Contexts))}
	for i, raw := range tj.Contexts {
		c, err := decodeContext(raw)
		if err != nil {
			return nil, errors.WithMessagef(err, "context #%d", i)
		}
		task.Contexts = append(task.Contexts, c)
	}
	return task, nil
}

func decodeContext(raw json.RawMessage) (Context, error) {
	var kj kindJSON
	if err := json.Unmarshal(raw, &kj); err != nil {
		return nil, core.ParamInvalidf("reading kind: %v", err)
	}
	kind, err := ParseKind(kj.Kind)
	if err != nil {
		return nil, err
	}
	c, err := newContext(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, core.ParamInvalidf("decoding %s context: %v", kind, err)
	}
	return c, nil
}
