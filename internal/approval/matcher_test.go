package approval

import "testing"

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		command string
		pattern string
		want    bool
	}{
		{"sudo rm -rf /", "sudo *", true},
		{"echo sudo ls", "sudo *", false},
		{"SUDO apt install", "sudo *", true},
		{"sudo", "sudo *", false},
		{"rm -rf /tmp/x", "rm -rf *", true},
		{"rm -rf", "rm -rf", true},
		{"rm -rf /", "rm -rf", false},
		{"anything at all", "*", true},
		{"", "*", true},
		{"git push origin main", "git * main", true},
		{"git push origin dev", "git * main", false},
		{"cat a.txt", "cat a.txt", true},
		{"cat abtxt", "cat a.txt", false},
		{"ls (x)", "ls (x)", true},
		{"echo $HOME | tee [a]+", "echo $HOME | tee [a]+", true},
		{"curl http://x", "*curl*", true},
		{"/usr/bin/curl http://x", "curl *", false},
	}
	for _, tt := range tests {
		if got := MatchesPattern(tt.command, tt.pattern); got != tt.want {
			t.Errorf("MatchesPattern(%q, %q) = %v, want %v", tt.command, tt.pattern, got, tt.want)
		}
	}
}

func TestFirstMatch_UsesListOrder(t *testing.T) {
	p, ok := firstMatch("sudo rm -rf /", []string{"ls *", "sudo *", "*rm*"})
	if !ok || p != "sudo *" {
		t.Fatalf("firstMatch = %q, %v", p, ok)
	}
	if _, ok := firstMatch("ls", nil); ok {
		t.Fatalf("expected no match with no patterns")
	}
}

func TestIsNetworkCommand(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"curl https://x", true},
		{"wget https://x", true},
		{"/usr/bin/ssh host", true},
		{"  nc -l 80", true},
		{"netcat host 80", true},
		{"traceroute 1.1.1.1", true},
		{"mtr 1.1.1.1", true},
		{"rsync -a a b", true},
		{"nmap -sS 10.0.0.0/24", true},
		{"echo curl", false},
		{"curly", false},
		{"ls -la", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsNetworkCommand(tt.command); got != tt.want {
			t.Errorf("IsNetworkCommand(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}
