package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

type fakeFetcher struct {
	urlErr      error
	downloadErr error
	payload     string
	urlCalls    int
}

func (f *fakeFetcher) MediaURL(_ context.Context, mediaID, _, _ string) (string, error) {
	f.urlCalls++
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://cdn.example.com/" + mediaID, nil
}

func (f *fakeFetcher) Download(_ context.Context, _, _ string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func (s *fakeStore) Put(_ context.Context, key string, reader io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type fakeSigner struct{ err error }

func (s *fakeSigner) SignedURL(key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://inbox.example.com/media?token=" + key, nil
}

func validInput() Input {
	return Input{
		MediaID:     "99001122",
		MimeType:    "image/jpeg",
		OwnerKey:    "15551234",
		AccessToken: "token",
		APIVersion:  "v23.0",
	}
}

func TestRelaySuccess(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: "bytes"}
	store := &fakeStore{}
	svc := NewService(nil, fetcher, store, &fakeSigner{})

	outcome := svc.Relay(context.Background(), validInput())
	if !outcome.Uploaded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.URL == "" || outcome.UploadedAt == nil || outcome.Err != "" {
		t.Fatalf("inconsistent success outcome: %+v", outcome)
	}
	if got := string(store.objects["15551234/99001122.jpg"]); got != "bytes" {
		t.Fatalf("stored object mismatch: %q", got)
	}
}

func TestRelayRejectsMalformedMediaID(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: "bytes"}
	svc := NewService(nil, fetcher, &fakeStore{}, &fakeSigner{})

	input := validInput()
	input.MediaID = "abc-123"
	outcome := svc.Relay(context.Background(), input)
	if outcome.Uploaded || outcome.URL != "" {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if !strings.Contains(outcome.Err, "invalid media id format") {
		t.Fatalf("unexpected reason: %s", outcome.Err)
	}
	// Validation happens before any provider call.
	if fetcher.urlCalls != 0 {
		t.Fatalf("expected no network calls, got %d", fetcher.urlCalls)
	}
}

func TestRelayProviderFailureDegrades(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{urlErr: fmt.Errorf("status 404")}
	svc := NewService(nil, fetcher, &fakeStore{}, &fakeSigner{})

	outcome := svc.Relay(context.Background(), validInput())
	if outcome.Uploaded || outcome.URL != "" || outcome.UploadedAt != nil {
		t.Fatalf("expected degraded outcome, got %+v", outcome)
	}
	if !strings.Contains(outcome.Err, "resolve media url") {
		t.Fatalf("unexpected reason: %s", outcome.Err)
	}
}

func TestRelayStorageFailureDegrades(t *testing.T) {
	t.Parallel()

	store := &fakeStore{putErr: errors.New("disk full")}
	svc := NewService(nil, &fakeFetcher{payload: "x"}, store, &fakeSigner{})

	outcome := svc.Relay(context.Background(), validInput())
	if outcome.Uploaded {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if !strings.Contains(outcome.Err, "store media") {
		t.Fatalf("unexpected reason: %s", outcome.Err)
	}
}

func TestRelayMissingTokenDegrades(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: "x"}
	svc := NewService(nil, fetcher, &fakeStore{}, &fakeSigner{})

	input := validInput()
	input.AccessToken = ""
	outcome := svc.Relay(context.Background(), input)
	if outcome.Uploaded || fetcher.urlCalls != 0 {
		t.Fatalf("expected local failure, got %+v (calls=%d)", outcome, fetcher.urlCalls)
	}
}

func TestExtensionFromMime(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"image/jpeg":      ".jpg",
		"IMAGE/PNG":       ".png",
		"audio/ogg":       ".ogg",
		"application/pdf": ".pdf",
		"":                ".bin",
		"application/x":   ".bin",
	}
	for mime, want := range cases {
		if got := extensionFromMime(mime); got != want {
			t.Fatalf("mime %q: got %q want %q", mime, got, want)
		}
	}
}
