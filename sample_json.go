package ttrace

import (
	"encoding/json"
	"time"

	"github.com/peterbourgon/ttrace/internal/ttutil"
)

type jsonSample struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	URI           string         `json:"uri,omitempty"`
	GUID          string         `json:"guid,omitempty"`
	Start         time.Time      `json:"start"`
	Duration      time.Duration  `json:"duration"`
	DurationStr   string         `json:"duration_str"`
	CPUTime       time.Duration  `json:"cpu_time,omitempty"`
	RequestParams map[string]any `json:"request_params,omitempty"`
	CustomParams  map[string]any `json:"custom_params,omitempty"`
	Synthetics    string         `json:"synthetics_resource_id,omitempty"`
	XraySessionID uint64         `json:"xray_session_id,omitempty"`
	ForcePersist  bool           `json:"force_persist,omitempty"`
	SegmentCount  int            `json:"segment_count"`
	ForceClosed   int            `json:"force_closed,omitempty"`
	Truncated     int            `json:"truncated,omitempty"`
	Root          *jsonSegment   `json:"root"`
}

type jsonSegment struct {
	Name        string                    `json:"name"`
	Entry       time.Duration             `json:"entry"`
	Duration    time.Duration             `json:"duration"`
	DurationStr string                    `json:"duration_str"`
	Annotations map[string]jsonAnnotation `json:"annotations,omitempty"`
	Children    []*jsonSegment            `json:"children,omitempty"`
}

type jsonAnnotation struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	Adapter   string    `json:"adapter,omitempty"`
	Backtrace Backtrace `json:"backtrace,omitempty"`
	Value     any       `json:"value,omitempty"`
}

// MarshalJSON renders the sample for diagnostic views. Segment entry times are
// relative to the start of the sample. Explain plans are never included.
func (s *Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSample{
		ID:            s.ID(),
		Name:          s.name,
		URI:           s.uri,
		GUID:          s.guid,
		Start:         s.start,
		Duration:      s.duration,
		DurationStr:   ttutil.HumanizeDuration(s.duration),
		CPUTime:       s.cpuTime,
		RequestParams: s.requestParams,
		CustomParams:  s.customParams,
		Synthetics:    s.syntheticsResourceID,
		XraySessionID: s.xraySessionID,
		ForcePersist:  s.forcePersist,
		SegmentCount:  s.segmentCount,
		ForceClosed:   s.forceClosed,
		Truncated:     s.truncated,
		Root:          jsonSegmentFrom(s.root, s.start),
	})
}

func jsonSegmentFrom(seg *Segment, start time.Time) *jsonSegment {
	js := &jsonSegment{
		Name:        seg.name,
		Entry:       seg.entry.Sub(start),
		Duration:    seg.Duration(),
		DurationStr: ttutil.HumanizeDuration(seg.Duration()),
	}

	if len(seg.annotations) > 0 {
		js.Annotations = make(map[string]jsonAnnotation, len(seg.annotations))
		for k, a := range seg.annotations {
			ja := jsonAnnotation{
				Kind:      a.Kind.String(),
				Text:      a.Text,
				Backtrace: a.Backtrace,
				Value:     a.Value,
			}
			if a.Query != nil {
				ja.SQL, ja.Adapter = a.Query.SQL, a.Query.Adapter
			}
			js.Annotations[k] = ja
		}
	}

	for _, child := range seg.children {
		js.Children = append(js.Children, jsonSegmentFrom(child, start))
	}

	return js
}
