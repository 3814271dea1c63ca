// Package eventlog journals inbound intents and outbound events for
// deterministic replay.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	. "mjolnir/internal/common"
)

// Record types, one per line of the log.
const (
	TypeRun            = "RUN"
	TypeNewOrder       = "NEW_ORDER"
	TypeCancel         = "CANCEL"
	TypeReplace        = "REPLACE"
	TypeOrderAccepted  = "ORDER_ACCEPTED"
	TypeOrderRejected  = "ORDER_REJECTED"
	TypeOrderCancelled = "ORDER_CANCELLED"
	TypeOrderReplaced  = "ORDER_REPLACED"
	TypeTrade          = "TRADE"
)

// Entry is one parsed log line. Data stays raw so callers decode it into the
// request or event type named by Type.
type Entry struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Ts   Timestamp       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// EventLog writes one JSON record per line when deterministic mode is on,
// and is a no-op otherwise. Given the same intents and an injected clock, a
// replayed run reproduces the log byte for byte (modulo the run id).
type EventLog struct {
	deterministic bool
	path          string
	runID         string

	file  *os.File
	w     *bufio.Writer
	seq   uint64
	clock Clock
}

func New(path string, deterministic bool, clock Clock) *EventLog {
	l := &EventLog{
		deterministic: deterministic,
		path:          path,
		runID:         uuid.NewString(),
		clock:         clock,
	}
	if deterministic && path != "" {
		l.ensureOpen()
	}
	return l
}

func (l *EventLog) Deterministic() bool { return l.deterministic }

func (l *EventLog) SetDeterministic(enabled bool) {
	l.deterministic = enabled
	if enabled && l.path != "" {
		l.ensureOpen()
	}
}

func (l *EventLog) SetLogPath(path string) {
	l.path = path
	if l.deterministic {
		l.ensureOpen()
	}
}

func (l *EventLog) RunID() string { return l.runID }

func (l *EventLog) LogNewOrder(request NewOrderRequest) { l.write(TypeNewOrder, request) }
func (l *EventLog) LogCancel(request CancelRequest)     { l.write(TypeCancel, request) }
func (l *EventLog) LogReplace(request ReplaceRequest)   { l.write(TypeReplace, request) }

func (l *EventLog) LogAccepted(event OrderAcceptedEvent)   { l.write(TypeOrderAccepted, event) }
func (l *EventLog) LogRejected(event OrderRejectedEvent)   { l.write(TypeOrderRejected, event) }
func (l *EventLog) LogCancelled(event OrderCancelledEvent) { l.write(TypeOrderCancelled, event) }
func (l *EventLog) LogReplaced(event OrderReplacedEvent)   { l.write(TypeOrderReplaced, event) }
func (l *EventLog) LogTrade(event TradeEvent)              { l.write(TypeTrade, event) }

func (l *EventLog) Flush() error {
	if l.w == nil {
		return nil
	}
	return l.w.Flush()
}

func (l *EventLog) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	err := l.file.Close()
	l.file = nil
	l.w = nil
	return err
}

// LoadLog parses a log file back into entries. Malformed lines are skipped,
// matching the writer's best-effort posture.
func LoadLog(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read event log: %w", err)
	}
	return entries, nil
}

func (l *EventLog) ensureOpen() {
	if l.file != nil || l.path == "" {
		return
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Err(err).Str("path", l.path).Msg("unable to create event log directory")
			return
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("unable to open event log")
		return
	}
	l.file = f
	l.w = bufio.NewWriter(f)

	// Header record so a reader can segment concatenated runs.
	l.write(TypeRun, map[string]string{"run_id": l.runID})
}

func (l *EventLog) write(recordType string, data any) {
	if !l.deterministic {
		return
	}
	l.ensureOpen()
	if l.w == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("type", recordType).Msg("unable to encode log record")
		return
	}
	l.seq++
	entry := Entry{
		Type: recordType,
		Seq:  l.seq,
		Ts:   l.clock.Now(),
		Data: raw,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("type", recordType).Msg("unable to encode log entry")
		return
	}
	if _, err := l.w.Write(line); err != nil {
		log.Error().Err(err).Str("type", recordType).Msg("unable to write log record")
		return
	}
	if err := l.w.WriteByte('\n'); err != nil {
		log.Error().Err(err).Str("type", recordType).Msg("unable to write log record")
	}
}
