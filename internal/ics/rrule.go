package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"pcal/internal/model"
)

var supportedRuleParts = map[string]bool{
	"FREQ":     true,
	"INTERVAL": true,
	"COUNT":    true,
	"UNTIL":    true,
}

// decodeRule parses an RRULE value. Parts outside FREQ, INTERVAL, COUNT and
// UNTIL are dropped and returned in ignored so the caller can surface them.
func decodeRule(value string, loc *time.Location) (rec *model.Recurrence, ignored []string, err error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "RRULE:")

	var kept []string
	hasFreq := false
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, nil, fmt.Errorf("malformed part %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if !supportedRuleParts[key] {
			ignored = append(ignored, key)
			continue
		}
		switch key {
		case "FREQ":
			hasFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, nil, fmt.Errorf("INTERVAL %q must be a positive integer", val)
			}
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, nil, fmt.Errorf("COUNT %q must be a positive integer", val)
			}
		}
		kept = append(kept, key+"="+val)
	}
	if !hasFreq {
		return nil, nil, errors.New("FREQ is required")
	}

	opt, err := rrule.StrToROptionInLocation(strings.Join(kept, ";"), loc)
	if err != nil {
		return nil, nil, err
	}

	freq, err := fromRRuleFrequency(opt.Freq)
	if err != nil {
		return nil, nil, err
	}
	rec = &model.Recurrence{
		Frequency: freq,
		Interval:  opt.Interval,
		Count:     opt.Count,
		Until:     opt.Until,
	}
	if rec.Interval == 0 {
		rec.Interval = 1
	}
	return rec, ignored, nil
}

func fromRRuleFrequency(f rrule.Frequency) (model.Frequency, error) {
	switch f {
	case rrule.DAILY:
		return model.Daily, nil
	case rrule.WEEKLY:
		return model.Weekly, nil
	case rrule.MONTHLY:
		return model.Monthly, nil
	case rrule.YEARLY:
		return model.Yearly, nil
	default:
		return 0, fmt.Errorf("frequency %v is not supported", f)
	}
}
