package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"pf-prod", "pf-payment-events", "projects/pf-prod/topics/pf-payment-events"},
		{"pf-prod", " pf-payment-events ", "projects/pf-prod/topics/pf-payment-events"},
		{"pf-prod", "projects/other/topics/events", "projects/other/topics/events"},
		{"", "pf-payment-events", ""},
		{"pf-prod", "", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}
