package gateway

import (
	"encoding/json"

	"PPGate/tools/errs"
)

// Positional param accessors. Every method takes its arguments as an
// ordered JSON array; handlers pull them out by index.

func (w *Context) ParamCount() int {
	return len(w.Req.Params)
}

func (w *Context) ParamRaw(i int) (json.RawMessage, error) {
	if i < 0 || i >= len(w.Req.Params) {
		return nil, errs.ErrWrongBody.WithDetail("missing param")
	}
	return w.Req.Params[i], nil
}

func (w *Context) ParamString(i int) (string, error) {
	raw, err := w.ParamRaw(i)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errs.ErrInvalidParams.WithDetail(err.Error())
	}
	return s, nil
}

func (w *Context) ParamBool(i int) (bool, error) {
	raw, err := w.ParamRaw(i)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, errs.ErrInvalidParams.WithDetail(err.Error())
	}
	return b, nil
}

func (w *Context) ParamInt(i int) (int, error) {
	raw, err := w.ParamRaw(i)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errs.ErrInvalidParams.WithDetail(err.Error())
	}
	return n, nil
}
