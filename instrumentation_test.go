package gqlmock

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// can only run one test at a time that takes over the log output
var logLock = sync.Mutex{}

func collectLogEvent(t *testing.T, f func()) map[string]interface{} {
	t.Helper()
	r, w := io.Pipe()
	defer r.Close()
	logLock.Lock()
	defer logLock.Unlock()
	prevOutput := log.StandardLogger().Out
	prevFormatter := log.StandardLogger().Formatter
	prevLevel := log.GetLevel()
	log.SetOutput(w)
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
	defer func() {
		log.SetOutput(prevOutput)
		log.SetFormatter(prevFormatter)
		log.SetLevel(prevLevel)
	}()

	go func() {
		defer w.Close()
		f()
	}()

	var obj map[string]interface{}
	err := json.NewDecoder(r).Decode(&obj)
	assert.NoError(t, err)

	return obj
}

func collectEventFromContext(ctx context.Context, t *testing.T, f func(*event)) map[string]interface{} {
	t.Helper()
	return collectLogEvent(t, func() {
		e := getEvent(ctx)
		f(e)
		if e != nil {
			e.finish()
		}
	})
}

func TestDropsField(t *testing.T) {
	AddField(context.TODO(), "val", "test")
	assert.Nil(t, getEvent(context.TODO()))
}

func TestEventLogOnFinish(t *testing.T) {
	ctx, _ := startEvent(context.TODO(), "test")
	output := collectEventFromContext(ctx, t, func(*event) {
		AddField(ctx, "val", "test")
	})

	assert.Equal(t, "test", output["val"])
	assert.Equal(t, "test", output["msg"])
}

func TestAddMultipleToEventOnContext(t *testing.T) {
	ctx, _ := startEvent(context.TODO(), "test")
	output := collectEventFromContext(ctx, t, func(*event) {
		AddFields(ctx, EventFields{
			"operation.name": "Hero",
			"client.name":    "web",
		})
	})

	assert.Equal(t, "Hero", output["operation.name"])
	assert.Equal(t, "web", output["client.name"])
}

func TestAppendToEventOnContext(t *testing.T) {
	ctx, _ := startEvent(context.TODO(), "test")
	output := collectEventFromContext(ctx, t, func(*event) {
		AppendField(ctx, "operations", "allHeroes")
		AppendField(ctx, "operations", "newHeroes")
	})

	assert.Equal(t, []interface{}{"allHeroes", "newHeroes"}, output["operations"])
}

func TestEventMeasurement(t *testing.T) {
	start := time.Now()
	ctx, _ := startEvent(context.TODO(), "test")
	output := collectEventFromContext(ctx, t, func(*event) {
		time.Sleep(time.Microsecond)
	})

	if ts, ok := output["timestamp"].(string); ok {
		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		assert.NoError(t, err)
		assert.WithinDuration(t, start, timestamp, time.Second)
	} else {
		assert.Fail(t, "missing timestamp")
	}
	if dur, ok := output["duration"].(string); ok {
		duration, err := time.ParseDuration(dur)
		assert.NoError(t, err)
		assert.True(t, duration > 0)
	} else {
		assert.Fail(t, "missing duration")
	}
}

func TestEventFinishesOnce(t *testing.T) {
	ctx, e := startEvent(context.TODO(), "test")
	output := collectEventFromContext(ctx, t, func(*event) {
		AddField(ctx, "val", "first")
	})
	assert.Equal(t, "first", output["val"])

	// a second finish must not log again
	e.finish()
}
