package dremio

import (
	"context"
	"strings"
	"testing"
)

func TestDoWrapsRequestBuildErrorWithOp(t *testing.T) {
	t.Parallel()

	client, err := NewClient("dremio.example:9047", Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	err = client.do(context.Background(), "submitSQL", "BAD METHOD", "api/v3/sql", nil, nil)
	if err == nil {
		t.Fatal("want error for invalid method")
	}
	if !strings.HasPrefix(err.Error(), "submitSQL: ") {
		t.Fatalf("error %q must carry the op prefix", err)
	}
}
