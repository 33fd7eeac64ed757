package quality

import "testing"

func TestEvaluate_ValidReply(t *testing.T) {
	v := Evaluate("Impressive growth — what drove the 20% jump?")
	if !v.Valid {
		t.Errorf("verdict should be valid, got reason %q", v.Reason)
	}
	// Trailing question and concrete figure both earn bonuses; the score
	// stays capped at 100.
	if v.Score != 100 {
		t.Errorf("Score = %d, want 100", v.Score)
	}
}

func TestEvaluate_TooShort(t *testing.T) {
	v := Evaluate("Nice work.")
	if v.Valid {
		t.Error("two-word reply should be invalid")
	}
	if v.Reason != ReasonTooShort {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonTooShort)
	}
	if v.Score >= 60 {
		t.Errorf("Score = %d, want < 60 so the pipeline retries", v.Score)
	}
}

func TestEvaluate_TooLong(t *testing.T) {
	long := ""
	for i := 0; i < 70; i++ {
		long += "word "
	}
	v := Evaluate(long + ".")
	if v.Valid {
		t.Error("70-word reply should be invalid")
	}
	if v.Reason != ReasonTooLong {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonTooLong)
	}
}

func TestEvaluate_NoTerminalPunctuation(t *testing.T) {
	v := Evaluate("Congrats on the launch and the roadmap")
	if v.Valid {
		t.Error("unpunctuated reply should be invalid")
	}
	if v.Reason != ReasonNoTerminalPunctuation {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonNoTerminalPunctuation)
	}
}

func TestEvaluate_Preamble(t *testing.T) {
	v := Evaluate("Here's a reply: congrats on the launch, well deserved.")
	if v.Valid {
		t.Error("preamble reply should be invalid")
	}
	if v.Reason != ReasonHasPreamble {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonHasPreamble)
	}
}

func TestEvaluate_GenericPhrasing(t *testing.T) {
	v := Evaluate("Great post, thanks for sharing this.")
	if v.Valid {
		t.Error("generic praise should be invalid")
	}
	if v.Reason != ReasonGenericPhrasing {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonGenericPhrasing)
	}
}

func TestEvaluate_GenericPhraseInsideSubstantiveReply(t *testing.T) {
	v := Evaluate("Thanks for sharing the migration numbers — cutting latency by 40% while doubling traffic is a serious result.")
	if !v.Valid {
		t.Errorf("substantive reply should be valid, got reason %q", v.Reason)
	}
}

func TestEvaluate_FirstFailureWins(t *testing.T) {
	// Short AND unpunctuated: reason reports the first hard check.
	v := Evaluate("ok then")
	if v.Reason != ReasonTooShort {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonTooShort)
	}
}

func TestEvaluate_ScoreBounds(t *testing.T) {
	for _, s := range []string{"", "hi", "Here's a reply: great post", "Solid quarter — the 20% growth and new hires both stand out."} {
		v := Evaluate(s)
		if v.Score < 0 || v.Score > 100 {
			t.Errorf("Evaluate(%q).Score = %d, out of [0,100]", s, v.Score)
		}
	}
}

func TestEvaluateWithBounds(t *testing.T) {
	v := EvaluateWithBounds("One two three four five.", Bounds{MinWords: 10, MaxWords: 20})
	if v.Valid || v.Reason != ReasonTooShort {
		t.Errorf("custom min words not honored: %+v", v)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	a := Evaluate("Impressive growth — what drove the 20% jump?")
	b := Evaluate("Impressive growth — what drove the 20% jump?")
	if a != b {
		t.Errorf("Evaluate not deterministic: %+v vs %+v", a, b)
	}
}
