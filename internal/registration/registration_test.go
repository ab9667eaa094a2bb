package registration

import (
	"context"
	"testing"

	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
)

func TestAttachAndFromContextRoundTrip(t *testing.T) {
	c := &circuit.Client{}
	ctx := AttachToContext(context.Background(), c)
	if got := FromContext(ctx); got != c {
		t.Fatalf("expected FromContext to recover the bound client")
	}
}

func TestFromContextWithoutAttachmentReturnsNil(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil for an unattached context, got %v", got)
	}
}

func TestRegistryAttachDetachCurrentClient(t *testing.T) {
	r := New()
	c := &circuit.Client{}

	if got := r.CurrentClient("tok-1"); got != nil {
		t.Fatalf("expected nil before attach, got %v", got)
	}

	r.AttachThread("tok-1", c)
	if got := r.CurrentClient("tok-1"); got != c {
		t.Fatalf("expected CurrentClient to recover the attached client")
	}
	if c.ThreadToken() != "tok-1" {
		t.Fatalf("expected client to record its own thread token")
	}

	r.DetachThread("tok-1")
	if got := r.CurrentClient("tok-1"); got != nil {
		t.Fatalf("expected nil after detach, got %v", got)
	}
}

func TestNoopRegistrarAcceptsRecord(t *testing.T) {
	closer, err := NoopRegistrar{}.RegisterServer(Record{Name: "CAS"})
	if err != nil {
		t.Fatal(err)
	}
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
}
