package gitops

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want AvailabilityReason
	}{
		{nil, ReasonPushSuccess},
		{&MergeConflictError{Paths: []string{".sparkle/00000001.json"}}, ReasonMergeConflict},
		{errors.New("gitops: push: context deadline exceeded"), ReasonPushTimeout},
		{errors.New("gitops: fetch: Permission denied (publickey)"), ReasonAuthError},
		{errors.New("gitops: fetch: Could not resolve host: github.com"), ReasonNetworkError},
		{errors.New("gitops: push: rejected"), ReasonPushFailed},
		{errors.New("gitops: fetch: unexpected EOF"), ReasonFetchFailed},
		{errors.New("gitops: something else entirely"), ReasonUnknown},
	}
	for _, c := range cases {
		got := ClassifyError(c.err)
		if got != c.want {
			t.Errorf("ClassifyError(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestMergeConflictError_Message(t *testing.T) {
	err := &MergeConflictError{Paths: []string{"a.json", "b.json"}}
	want := "gitops: merge conflict in 2 path(s): a.json, b.json"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
