package constants

import "testing"

func TestDescriptorSuffix(t *testing.T) {
	if DescriptorSuffix != ".agent.md" {
		t.Errorf("DescriptorSuffix = %q, want %q", DescriptorSuffix, ".agent.md")
	}
}

func TestDescriptorConventionalPaths(t *testing.T) {
	if len(DescriptorConventionalPaths) != 3 {
		t.Fatalf("DescriptorConventionalPaths length = %d, want 3", len(DescriptorConventionalPaths))
	}
	for _, p := range DescriptorConventionalPaths {
		if p == "" {
			t.Error("DescriptorConventionalPaths entries must not be empty")
		}
	}
}

func TestDefaultAllowedHosts(t *testing.T) {
	want := map[string]bool{"github.com": true, "raw.githubusercontent.com": true, "api.github.com": true}
	if len(DefaultAllowedHosts) != len(want) {
		t.Fatalf("DefaultAllowedHosts length = %d, want %d", len(DefaultAllowedHosts), len(want))
	}
	for _, h := range DefaultAllowedHosts {
		if !want[h] {
			t.Errorf("unexpected host in DefaultAllowedHosts: %q", h)
		}
	}
}

func TestDeniedPaths(t *testing.T) {
	if len(DeniedPathPrefixes) == 0 {
		t.Error("DeniedPathPrefixes should not be empty")
	}
	if len(DeniedPathInfixes) == 0 {
		t.Error("DeniedPathInfixes should not be empty")
	}
}

func TestTimeoutDefaults(t *testing.T) {
	if DefaultTimeoutMinutes <= 0 {
		t.Error("DefaultTimeoutMinutes should be positive")
	}
	if DefaultRetryAttempts <= 0 {
		t.Error("DefaultRetryAttempts should be positive")
	}
	if MaxIncludeDepth != 10 {
		t.Errorf("MaxIncludeDepth = %d, want 10", MaxIncludeDepth)
	}
	if RateLimitMaxRequests != 60 {
		t.Errorf("RateLimitMaxRequests = %d, want 60", RateLimitMaxRequests)
	}
}

func TestDefaultPriority(t *testing.T) {
	if DefaultPriority != 50 {
		t.Errorf("DefaultPriority = %d, want 50", DefaultPriority)
	}
}
