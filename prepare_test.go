package ttrace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/peterbourgon/ttrace"
	"github.com/tinylib/msgp/msgp"
)

func decodePayload(t *testing.T, p *ttrace.Prepared) map[string]any {
	t.Helper()

	zr, err := zlib.NewReader(bytes.NewReader(p.Payload))
	AssertNoError(t, err)
	raw, err := io.ReadAll(zr)
	AssertNoError(t, err)

	var buf bytes.Buffer
	_, err = msgp.UnmarshalAsJSON(&buf, raw)
	AssertNoError(t, err)

	var m map[string]any
	AssertNoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	var explained []string
	explainer := func(sql string) ttrace.Explainer {
		return func(ctx context.Context) ([]string, error) {
			explained = append(explained, sql)
			return []string{"Seq Scan on users"}, nil
		}
	}

	b := ttrace.NewBuilder(at(0))
	b.SetTransactionName("Controller/users/index")
	b.SetGUID("guid-1")
	b.SetRequestParams(map[string]any{"page": "2"})

	slow := b.EnterSegment("Database/users/select", at(1))
	b.AnnotateQuery(slow, ttrace.NewQuery("SELECT * FROM users", ttrace.DriverConfig{"adapter": "postgres"}, time.Second, explainer("slow")))
	AssertNoError(t, b.ExitSegment(slow, at(1001)))

	fast := b.EnterSegment("Database/posts/select", at(1002))
	b.AnnotateQuery(fast, ttrace.NewQuery("SELECT * FROM posts", nil, time.Millisecond, explainer("fast")))
	AssertNoError(t, b.ExitSegment(fast, at(1003)))

	s, err := b.Finish(at(1010), map[string]any{"user": "alice"})
	AssertNoError(t, err)

	p, err := s.Prepare(context.Background(), ttrace.PrepareOptions{ExplainEnabled: true, ExplainThreshold: 500 * time.Millisecond})
	AssertNoError(t, err)
	AssertEqual(t, s, p.Sample)

	if want, have := []string{"slow"}, explained; len(have) != 1 || have[0] != want[0] {
		t.Errorf("explained: want %v, have %v", want, have)
	}

	m := decodePayload(t, p)
	ExpectEqual(t, "Controller/users/index", m["name"].(string))
	ExpectEqual(t, "guid-1", m["guid"].(string))
	ExpectEqual(t, float64(1010000), m["duration_us"].(float64))
	ExpectEqual(t, "alice", m["custom_params"].(map[string]any)["user"].(string))

	root := m["root"].(map[string]any)
	children := root["children"].([]any)
	AssertEqual(t, 2, len(children))

	slowAnn := children[0].(map[string]any)["annotations"].(map[string]any)["sql"].(map[string]any)
	ExpectEqual(t, "SELECT * FROM users", slowAnn["sql"].(string))
	ExpectEqual(t, "Seq Scan on users", slowAnn["explain"].([]any)[0].(string))

	fastAnn := children[1].(map[string]any)["annotations"].(map[string]any)["sql"].(map[string]any)
	if _, ok := fastAnn["explain"]; ok {
		t.Errorf("fast query was explained")
	}
}

func TestPrepareExplainError(t *testing.T) {
	t.Parallel()

	b := ttrace.NewBuilder(at(0))
	seg := b.EnterSegment("Database/select", at(0))
	b.AnnotateQuery(seg, ttrace.NewQuery("SELECT 1", nil, time.Second, func(context.Context) ([]string, error) {
		return nil, errors.New("connection refused")
	}))
	s, err := b.Finish(at(1), nil)
	AssertNoError(t, err)

	p, err := s.Prepare(context.Background(), ttrace.PrepareOptions{ExplainEnabled: true})
	AssertNoError(t, err)

	m := decodePayload(t, p)
	child := m["root"].(map[string]any)["children"].([]any)[0].(map[string]any)
	q := child["annotations"].(map[string]any)["sql"].(map[string]any)
	ExpectEqual(t, "connection refused", q["explain_error"].(string))
}

func TestPrepareFailures(t *testing.T) {
	t.Parallel()

	t.Run("not finished", func(t *testing.T) {
		b := ttrace.NewBuilder(at(0))
		if _, err := b.Sample().Prepare(context.Background(), ttrace.PrepareOptions{}); !errors.Is(err, ttrace.ErrNotFinished) {
			t.Errorf("want %v, have %v", ttrace.ErrNotFinished, err)
		}
	})

	t.Run("unencodable parameter", func(t *testing.T) {
		b := ttrace.NewBuilder(at(0))
		b.SetCustomParam("ch", make(chan int))
		s, err := b.Finish(at(1), nil)
		AssertNoError(t, err)
		if _, err := s.Prepare(context.Background(), ttrace.PrepareOptions{}); err == nil {
			t.Errorf("want error, have none")
		}
	})

	t.Run("panicking explainer", func(t *testing.T) {
		b := ttrace.NewBuilder(at(0))
		seg := b.EnterSegment("Database/select", at(0))
		b.AnnotateQuery(seg, ttrace.NewQuery("SELECT 1", nil, time.Second, func(context.Context) ([]string, error) {
			panic("boom")
		}))
		s, err := b.Finish(at(1), nil)
		AssertNoError(t, err)
		_, err = s.Prepare(context.Background(), ttrace.PrepareOptions{ExplainEnabled: true})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("want panic error, have %v", err)
		}
	})
}

func TestSampleJSON(t *testing.T) {
	t.Parallel()

	b := ttrace.NewBuilder(at(0))
	b.SetTransactionName("txn")
	seg := b.EnterSegment("Memcache/get", at(1))
	b.AnnotateKey(seg, "user:1")
	AssertNoError(t, b.ExitSegment(seg, at(3)))
	s, err := b.Finish(at(4), nil)
	AssertNoError(t, err)

	buf, err := json.Marshal(s)
	AssertNoError(t, err)

	var m struct {
		Name string `json:"name"`
		Root struct {
			Children []struct {
				Name        string `json:"name"`
				DurationStr string `json:"duration_str"`
				Annotations map[string]struct {
					Kind string `json:"kind"`
					Text string `json:"text"`
				} `json:"annotations"`
			} `json:"children"`
		} `json:"root"`
	}
	AssertNoError(t, json.Unmarshal(buf, &m))
	ExpectEqual(t, "txn", m.Name)
	AssertEqual(t, 1, len(m.Root.Children))
	ExpectEqual(t, "Memcache/get", m.Root.Children[0].Name)
	ExpectEqual(t, "2ms", m.Root.Children[0].DurationStr)
	ExpectEqual(t, "key", m.Root.Children[0].Annotations["key"].Kind)
	ExpectEqual(t, "user:1", m.Root.Children[0].Annotations["key"].Text)
}
