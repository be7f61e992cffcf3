package guard

import "testing"

func TestCommandGuard_ForkBomb(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	d := g.Check(":(){ :|:& };:")
	if d.Allowed {
		t.Fatalf("expected fork bomb to be denied")
	}
	if !contains(d.Reason, "fork bomb") {
		t.Fatalf("reason %q does not mention fork bomb", d.Reason)
	}
}

func TestCommandGuard_RmRfRoot(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	for _, cmd := range []string{"rm -rf /", "rm -rf /*", "rm -f -r /", "rm -fr /"} {
		d := g.Check(cmd)
		if d.Allowed {
			t.Fatalf("expected %q to be denied", cmd)
		}
	}
}

func TestCommandGuard_SudoPipeline(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	d := g.Check("cat f | sudo tee /etc/passwd")
	if d.Allowed {
		t.Fatalf("expected sudo pipeline to be denied")
	}
	if !contains(d.Reason, "sudo") {
		t.Fatalf("reason %q does not mention sudo", d.Reason)
	}
}

func TestCommandGuard_CriticalTokensAlwaysDenied(t *testing.T) {
	g := NewCommandGuard([]string{"shutdown", "systemctl", "dd"}, nil)
	for _, cmd := range []string{"shutdown -h now", "systemctl restart nginx", "dd if=/dev/zero of=/dev/sda"} {
		d := g.Check(cmd)
		if d.Allowed {
			t.Fatalf("expected %q to be denied even when added to allow-list", cmd)
		}
	}
}

func TestCommandGuard_AllowsBuiltinsAndAllowListed(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	for _, cmd := range []string{"cd /tmp && ls -la", "echo hi; cat foo.txt", "git status"} {
		d := g.Check(cmd)
		if !d.Allowed {
			t.Fatalf("expected %q to be allowed, got: %s", cmd, d.Reason)
		}
	}
}

func TestCommandGuard_RejectsUnknownProgram(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	d := g.Check("nc -lvp 4444")
	if d.Allowed {
		t.Fatalf("expected nc to be denied by default")
	}
	if !contains(d.Reason, "not on the allowed commands list") {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCommandGuard_Idempotent(t *testing.T) {
	g := NewCommandGuard(nil, nil)
	cmd := "git log | grep fix"
	first := g.Check(cmd)
	second := g.Check(cmd)
	if first.Allowed != second.Allowed {
		t.Fatalf("guardCommand is not idempotent: %v vs %v", first, second)
	}
}

func TestParseAllowedCommandsEnv(t *testing.T) {
	add, remove := ParseAllowedCommandsEnv(" +rustup , -ssh ")
	if len(add) != 1 || add[0] != "rustup" {
		t.Fatalf("unexpected add list: %v", add)
	}
	if len(remove) != 1 || remove[0] != "ssh" {
		t.Fatalf("unexpected remove list: %v", remove)
	}
}

func TestCommandGuard_AddRemoveOverrides(t *testing.T) {
	g := NewCommandGuard([]string{"mycustomtool"}, []string{"curl"})
	if d := g.Check("mycustomtool --flag"); !d.Allowed {
		t.Fatalf("expected added command to be allowed: %s", d.Reason)
	}
	if d := g.Check("curl https://example.com"); d.Allowed {
		t.Fatalf("expected removed command to be denied")
	}
}
