package s3

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignPresignsObjectKey(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	signer := NewURLSigner(client, "photos", time.Minute)

	url, err := signer.Sign(context.Background(), "users/7/1.jpg")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.Contains(url, "/photos/users/7/1.jpg") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url: %s", url)
	}
}

func TestSignPassesThroughAbsoluteURLs(t *testing.T) {
	var signer *URLSigner
	got, err := signer.Sign(context.Background(), "https://cdn.example.com/a.jpg")
	if err != nil || got != "https://cdn.example.com/a.jpg" {
		t.Fatalf("unexpected passthrough result: %q err=%v", got, err)
	}
	if _, err := signer.Sign(context.Background(), "  "); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected empty key error, got %v", err)
	}
}
