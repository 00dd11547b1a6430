package homework

import (
	"fmt"

	logx "hwbot/pkg/logx"
)

// Response keys of the homework_statuses endpoint.
const (
	KeyHomeworks   = "homeworks"
	KeyCurrentDate = "current_date"
	KeyName        = "homework_name"
	KeyStatus      = "status"
)

// Record is a single homework entry as returned by the API.
type Record struct {
	Name   *string
	Status string
}

// Parser validates decoded API responses and turns homework records into
// chat messages.
type Parser struct {
	verdicts Verdicts
	log      logx.Logger
}

func NewParser(v Verdicts, log logx.Logger) *Parser {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Parser{verdicts: v, log: log}
}

// CheckResponse checks that v is a non-empty JSON object carrying a
// homeworks array and a current_date marker, and returns the array as is.
func (p *Parser) CheckResponse(v any) ([]any, error) {
	p.log.Debug("checking api response")

	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, p.incorrect(fmt.Sprintf("expected non-empty object, got %T", v))
	}
	if _, ok := m[KeyCurrentDate]; !ok {
		return nil, p.incorrect("missing " + KeyCurrentDate)
	}
	raw, ok := m[KeyHomeworks]
	if !ok {
		return nil, p.incorrect("missing " + KeyHomeworks)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, p.incorrect(fmt.Sprintf("%s is %T, not an array", KeyHomeworks, raw))
	}
	return items, nil
}

func (p *Parser) incorrect(detail string) error {
	err := NewError(ErrIncorrectResponse, "API response does not match the expected shape", nil)
	p.log.Error(err.Error(), logx.String("detail", detail))
	return err
}

// DecodeRecord reads a homework record out of a decoded JSON value.
// A missing or non-string name leaves Record.Name nil.
func DecodeRecord(item any) (Record, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return Record{}, NewError(ErrIncorrectResponse,
			fmt.Sprintf("homework entry is %T, not an object", item), nil)
	}
	var rec Record
	if name, ok := m[KeyName].(string); ok {
		rec.Name = &name
	}
	rec.Status, _ = m[KeyStatus].(string)
	return rec, nil
}

// ParseStatus formats the status-change message for a single homework entry.
func (p *Parser) ParseStatus(item any) (string, error) {
	rec, err := DecodeRecord(item)
	if err != nil {
		p.log.Error("cannot decode homework entry", logx.Err(err))
		return "", err
	}
	return p.Format(rec)
}

// Format renders rec. A nil name is reported before an unknown status.
func (p *Parser) Format(rec Record) (string, error) {
	if rec.Name == nil {
		err := NewError(ErrMissingField, "`"+KeyName+"` is missing from the homework entry", nil)
		p.log.Error(err.Error())
		return "", err
	}
	verdict, ok := p.verdicts.Lookup(rec.Status)
	if !ok {
		err := NewError(ErrUnknownStatus, fmt.Sprintf("unknown homework status: %q", rec.Status), nil)
		p.log.Error(err.Error(), logx.Strs("known", p.verdicts.Statuses()))
		return "", err
	}
	return fmt.Sprintf(`Changed status of "%s". %s`, *rec.Name, verdict), nil
}
