package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deemkeen/andstatus/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonParser(body []byte) (*domain.Activity, error) {
	var act domain.Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

func writeSpool(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestDrainStatic(t *testing.T) {
	var got []string
	n, err := Drain(context.Background(),
		Static(&domain.Activity{Oid: "a"}, &domain.Activity{Oid: "b"}),
		SinkFunc(func(_ context.Context, act *domain.Activity) error {
			got = append(got, act.Oid)
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDrainStopsOnSinkError(t *testing.T) {
	boom := errors.New("boom")
	n, err := Drain(context.Background(),
		Static(&domain.Activity{Oid: "a"}, &domain.Activity{Oid: "b"}),
		SinkFunc(func(context.Context, *domain.Activity) error { return boom }))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestSpoolReadsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "002.json", `{"Oid":"second"}`)
	writeSpool(t, dir, "001.json", `{"Oid":"first"}`)
	writeSpool(t, dir, "003.json", `not json`)
	writeSpool(t, dir, "notes.txt", `ignored`)

	s, err := NewSpool(dir, jsonParser, false)
	require.NoError(t, err)

	var got []string
	n, err := Drain(context.Background(), s, SinkFunc(func(_ context.Context, act *domain.Activity) error {
		got = append(got, act.Oid)
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, got)
	assert.FileExists(t, filepath.Join(dir, "001.done"))
	assert.FileExists(t, filepath.Join(dir, "002.done"))
	assert.FileExists(t, filepath.Join(dir, "003.failed"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestSpoolKeepsFileWhenSinkFails(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "001.json", `{"Oid":"first"}`)

	s, err := NewSpool(dir, jsonParser, false)
	require.NoError(t, err)
	_, err = Drain(context.Background(), s, SinkFunc(func(context.Context, *domain.Activity) error {
		return errors.New("rejected")
	}))
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "001.json"), "rejected activity stays in the spool")
}

func TestSpoolWatchWaitsForNewFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir, jsonParser, true)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, "001.tmp")
		_ = os.WriteFile(tmp, []byte(`{"Oid":"late"}`), 0o600)
		_ = os.Rename(tmp, filepath.Join(dir, "001.json"))
	}()

	act, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", act.Oid)
}

func TestSpoolMissingDirectory(t *testing.T) {
	_, err := NewSpool(filepath.Join(t.TempDir(), "missing"), jsonParser, false)
	assert.Error(t, err)
}

func TestStaticEOF(t *testing.T) {
	_, err := Static().Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
