package transcript

import "testing"

func speakerSentence(id string, startMs, endMs int64, label, text string) SpeakerSentence {
	return SpeakerSentence{
		Sentence: Sentence{ID: id, StartMs: startMs, EndMs: endMs, Text: text, Final: true},
		Label:    label,
	}
}

func TestStitcherMergesShortGap(t *testing.T) {
	st := NewStitcher(DefaultStitcherConfig())

	first, merged := st.Stitch(speakerSentence("a", 0, 2000, "spk0", "Привет."))
	if merged {
		t.Fatal("first sentence can not be merged")
	}

	out, merged := st.Stitch(speakerSentence("b", 2500, 4000, "spk0", "Как дела?"))
	if !merged {
		t.Fatal("same label with short gap must merge")
	}
	if out.ID != first.ID {
		t.Errorf("merged utterance must keep the original id, got %q", out.ID)
	}
	if out.Text != "Привет. Как дела?" {
		t.Errorf("unexpected merged text: %q", out.Text)
	}
	if out.EndMs != 4000 {
		t.Errorf("merged range must extend, got %d", out.EndMs)
	}
	if out.Version != first.Version+1 {
		t.Errorf("merge must bump version: %d -> %d", first.Version, out.Version)
	}
}

func TestStitcherKeepsDistinctOnLongGap(t *testing.T) {
	st := NewStitcher(DefaultStitcherConfig())

	st.Stitch(speakerSentence("a", 0, 2000, "spk0", "Первая."))
	out, merged := st.Stitch(speakerSentence("b", 5000, 6000, "spk0", "Вторая."))
	if merged {
		t.Fatal("gap above threshold must not merge")
	}
	if out.ID != "b" {
		t.Errorf("expected independent sentence, got %+v", out)
	}
}

func TestStitcherKeepsDistinctOnLabelChange(t *testing.T) {
	st := NewStitcher(DefaultStitcherConfig())

	st.Stitch(speakerSentence("a", 0, 2000, "spk0", "Первая."))
	_, merged := st.Stitch(speakerSentence("b", 2200, 3000, "spk1", "Вторая."))
	if merged {
		t.Fatal("different labels must not merge")
	}
}

func TestStitcherRespectsMaxDuration(t *testing.T) {
	cfg := DefaultStitcherConfig()
	cfg.MaxStitchedDurMs = 5000
	st := NewStitcher(cfg)

	st.Stitch(speakerSentence("a", 0, 4000, "spk0", "Длинная."))
	_, merged := st.Stitch(speakerSentence("b", 4500, 9000, "spk0", "Ещё."))
	if merged {
		t.Fatal("merge exceeding max duration must be rejected")
	}
}

func TestStitcherUncertainNeverMerges(t *testing.T) {
	st := NewStitcher(DefaultStitcherConfig())

	st.Stitch(speakerSentence("a", 0, 2000, "spk0", "Первая."))
	ss := speakerSentence("b", 2200, 3000, "spk0", "Вторая.")
	ss.Uncertain = true
	if _, merged := st.Stitch(ss); merged {
		t.Fatal("uncertain sentences must not merge")
	}
}

func TestStitcherResetBreaksMerge(t *testing.T) {
	st := NewStitcher(DefaultStitcherConfig())

	st.Stitch(speakerSentence("a", 0, 2000, "spk0", "Первая часть."))

	// После пере-атрибуции предыдущей реплики склейка через границу
	// недопустима даже при совпадающей метке и коротком разрыве
	st.Reset()

	out, merged := st.Stitch(speakerSentence("b", 2500, 4000, "spk0", "Вторая часть."))
	if merged {
		t.Fatal("reset must break the merge chain")
	}
	if out.ID != "b" {
		t.Errorf("sentence after reset must stay independent, got %q", out.ID)
	}
}
