package stage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestBlobNameLayout(t *testing.T) {
	name := BlobName("marketing", "NAVER_AD", "batch.csv")
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] != "marketing" || parts[1] != "NAVER_AD" {
		t.Fatalf("unexpected blob name %q", name)
	}
	if !strings.HasSuffix(parts[2], "_batch.csv") {
		t.Fatalf("blob leaf missing timestamp prefix: %q", parts[2])
	}
}

func TestBlobNamesDoNotCollide(t *testing.T) {
	a := BlobName("d", "t", "f.csv")
	b := BlobName("d", "t", "f.csv")
	if a == b {
		t.Fatalf("two stagings of the same file produced the same blob: %q", a)
	}
}

func TestLocalStageRoundTrip(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	ctx := context.Background()

	blob := "marketing/NAVER_AD/1_batch.csv"
	if err := s.Upload(ctx, blob, []byte("date,clicks\n2025-03-01,10\n")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, err := s.Download(ctx, blob)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.HasPrefix(string(data), "date,clicks") {
		t.Fatalf("unexpected payload: %q", data)
	}

	rc, err := s.Open(ctx, blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	streamed, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(streamed) != string(data) {
		t.Fatalf("streamed read mismatch: %v", err)
	}
}

func TestLocalStageUploadStream(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	ctx := context.Background()

	blob := "marketing/GA4_site/2_batch.ndjson"
	payload := `{"date":"2025-03-01"}` + "\n"
	if err := s.UploadStream(ctx, blob, strings.NewReader(payload), -1); err != nil {
		t.Fatalf("upload stream: %v", err)
	}
	data, err := s.Download(ctx, blob)
	if err != nil || string(data) != payload {
		t.Fatalf("round trip failed: %v %q", err, data)
	}
}

func TestLocalStageDeleteIsIdempotent(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	ctx := context.Background()

	blob := "d/t/3_x.csv"
	if err := s.Upload(ctx, blob, []byte("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	existed, err := s.Delete(ctx, blob)
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = s.Delete(ctx, blob)
	if err != nil || existed {
		t.Fatalf("second delete should be a clean no-op: existed=%v err=%v", existed, err)
	}
}

func TestLocalStageMissingObject(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	_, err := s.Download(context.Background(), "nope/nothing.csv")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	coded, ok := err.(*Error)
	if !ok || coded.Code != CodeObjectNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLocalStageList(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	ctx := context.Background()

	for _, blob := range []string{
		"marketing/NAVER_AD/1_a.csv",
		"marketing/NAVER_AD/2_b.csv",
		"marketing/GA4_site/1_c.csv",
	} {
		if err := s.Upload(ctx, blob, []byte("x")); err != nil {
			t.Fatalf("upload %s: %v", blob, err)
		}
	}
	keys, err := s.List(ctx, "marketing/NAVER_AD/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestLocalStageSignedURL(t *testing.T) {
	s := NewLocalStage(t.TempDir())
	ctx := context.Background()

	u, err := s.SignedURL(ctx, "d/t/4_x.csv", "GET", 0)
	if err != nil || !strings.HasPrefix(u, "file://") {
		t.Fatalf("signed url: %q %v", u, err)
	}
	if _, err := s.SignedURL(ctx, "d/t/4_x.csv", "DELETE", 0); err == nil {
		t.Fatalf("expected unsupported-method error")
	}
}

func TestNewS3StageValidatesConfig(t *testing.T) {
	if _, err := NewS3Stage(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := NewS3Stage(&Config{EndpointURL: "http://localhost:9000"}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
	if _, err := NewS3Stage(&Config{
		EndpointURL: "http://localhost:9000",
		AccessKeyID: "k", SecretAccessKey: "s",
	}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}
