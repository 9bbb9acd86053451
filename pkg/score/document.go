package score

import (
	"encoding/json"
	"fmt"
)

// The composition interchange document is the JSON boundary shared with
// upstream producers (AI extractors, reference stores). ParseDocument
// turns an untrusted document into a validated Composition or fails with
// an error naming the violated rule and its track/event index;
// EncodeDocument writes the document back, echoing pass-through fields
// unmodified.

const defaultVelocity = 100

type document struct {
	Title         string            `json:"title"`
	BPM           *float64          `json:"bpm,omitempty"`
	TimeSignature *timeSignatureDoc `json:"time_signature,omitempty"`
	PPQ           *int              `json:"ppq,omitempty"`
	KeySignature  string            `json:"key_signature,omitempty"`
	MusicalIntent json.RawMessage   `json:"musical_intent,omitempty"`
	Tracks        []trackDoc        `json:"tracks"`
}

type timeSignatureDoc struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

type trackDoc struct {
	Name    string     `json:"name,omitempty"`
	Channel *int       `json:"channel,omitempty"`
	Program *int       `json:"program,omitempty"`
	Events  []eventDoc `json:"events"`
}

type eventDoc struct {
	Type  string   `json:"type"`
	Start *float64 `json:"start"`

	// note
	Duration *float64   `json:"duration,omitempty"`
	Velocity *int       `json:"velocity,omitempty"`
	Pitch    *pitchDoc  `json:"pitch,omitempty"`
	Pitches  []pitchDoc `json:"pitches,omitempty"`
	Notes    []noteDoc  `json:"notes,omitempty"`
	Groups   []groupDoc `json:"groups,omitempty"`
	Hand     string     `json:"hand,omitempty"`
	Voice    *int       `json:"voice,omitempty"`

	// pedal
	Value *int `json:"value,omitempty"`

	// tempo
	BPM      *float64 `json:"bpm,omitempty"`
	StartBPM *float64 `json:"start_bpm,omitempty"`
	EndBPM   *float64 `json:"end_bpm,omitempty"`

	// section
	Label string `json:"label,omitempty"`

	// pass-through annotations
	Section string `json:"section,omitempty"`
	Phrase  string `json:"phrase,omitempty"`
}

type noteDoc struct {
	Pitch pitchDoc `json:"pitch"`
	Hand  string   `json:"hand,omitempty"`
	Voice int      `json:"voice,omitempty"`
}

type groupDoc struct {
	Hand    string     `json:"hand,omitempty"`
	Voice   int        `json:"voice,omitempty"`
	Pitches []pitchDoc `json:"pitches"`
}

// pitchDoc accepts either a scientific name ("C#4") or a MIDI number.
type pitchDoc struct {
	value uint8
}

func (p *pitchDoc) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		midi, err := ParsePitch(name)
		if err != nil {
			return err
		}
		p.value = midi
		return nil
	}
	var num int
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("pitch must be a note name or a MIDI number")
	}
	if num < 0 || num > MaxPitch {
		return fmt.Errorf("pitch %d outside 0..%d", num, MaxPitch)
	}
	p.value = uint8(num)
	return nil
}

func (p pitchDoc) MarshalJSON() ([]byte, error) {
	return json.Marshal(PitchName(p.value))
}

// ParseDocument decodes and validates a composition interchange
// document.
func ParseDocument(data []byte) (Composition, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Composition{}, fmt.Errorf("malformed composition document: %w", err)
	}

	bpm := DefaultBPM
	if doc.BPM != nil {
		bpm = *doc.BPM
	}
	ts := TimeSignature{Numerator: 4, Denominator: 4}
	if doc.TimeSignature != nil {
		ts = TimeSignature{Numerator: doc.TimeSignature.Numerator, Denominator: doc.TimeSignature.Denominator}
	}
	ppq := DefaultPPQ
	if doc.PPQ != nil {
		ppq = *doc.PPQ
	}

	tracks := make([]Track, 0, len(doc.Tracks))
	for ti, td := range doc.Tracks {
		tr, err := parseTrack(ti, td)
		if err != nil {
			return Composition{}, err
		}
		tracks = append(tracks, tr)
	}

	c, err := NewComposition(doc.Title, bpm, ts, ppq, doc.KeySignature, tracks)
	if err != nil {
		return Composition{}, err
	}
	if len(doc.MusicalIntent) > 0 {
		c.MusicalIntent = append([]byte(nil), doc.MusicalIntent...)
	}
	return c, nil
}

func parseTrack(ti int, td trackDoc) (Track, error) {
	tr := Track{Name: td.Name}
	if td.Channel != nil {
		if *td.Channel < 0 || *td.Channel > MaxChannel {
			return Track{}, trackError(ti, "channel %d outside 0..%d", *td.Channel, MaxChannel)
		}
		tr.Channel = uint8(*td.Channel)
	}
	if td.Program != nil {
		if *td.Program < 0 || *td.Program > MaxProgram {
			return Track{}, trackError(ti, "program %d outside 0..%d", *td.Program, MaxProgram)
		}
		tr.Program = uint8(*td.Program)
	}
	for ei, ed := range td.Events {
		ev, err := parseEvent(ed)
		if err != nil {
			return Track{}, eventError(ti, ei, err)
		}
		tr.Events = append(tr.Events, ev)
	}
	return tr, nil
}

func parseEvent(ed eventDoc) (Event, error) {
	if ed.Start == nil {
		return nil, fmt.Errorf("event has no start")
	}
	switch ed.Type {
	case "note":
		return parseNoteEvent(ed)
	case "pedal":
		return parsePedalEvent(ed)
	case "tempo":
		return parseTempoEvent(ed)
	case "section":
		return SectionEvent{Start: *ed.Start, Label: ed.Label}, nil
	case "":
		return nil, fmt.Errorf("event has no type")
	default:
		return nil, fmt.Errorf("unknown event type %q", ed.Type)
	}
}

func parseNoteEvent(ed eventDoc) (Event, error) {
	if ed.Duration == nil {
		return nil, fmt.Errorf("note event has no duration")
	}
	velocity := defaultVelocity
	if ed.Velocity != nil {
		velocity = *ed.Velocity
	}
	if velocity < 0 || velocity > MaxVelocity {
		return nil, fmt.Errorf("velocity %d outside 0..%d", velocity, MaxVelocity)
	}

	notes, err := parsePitchRepresentation(ed)
	if err != nil {
		return nil, err
	}

	return NoteEvent{
		Start:    *ed.Start,
		Duration: *ed.Duration,
		Velocity: uint8(velocity),
		Notes:    notes,
		Section:  ed.Section,
		Phrase:   ed.Phrase,
	}, nil
}

// parsePitchRepresentation enforces the mutual exclusivity rule: a note
// event carries its pitches through exactly one of "pitch", "pitches",
// "notes", or "groups", and an event-level hand tag is only legal with
// the first two (per-note and per-group tags make it ambiguous).
func parsePitchRepresentation(ed eventDoc) ([]Note, error) {
	forms := 0
	if ed.Pitch != nil {
		forms++
	}
	if len(ed.Pitches) > 0 {
		forms++
	}
	if len(ed.Notes) > 0 {
		forms++
	}
	if len(ed.Groups) > 0 {
		forms++
	}
	if forms == 0 {
		return nil, fmt.Errorf("note event has no pitch representation")
	}
	if forms > 1 {
		return nil, fmt.Errorf("note event mixes pitch representations; use exactly one of pitch, pitches, notes, groups")
	}
	if ed.Hand != "" && (len(ed.Notes) > 0 || len(ed.Groups) > 0) {
		return nil, fmt.Errorf("event-level hand tag conflicts with per-note hand tags")
	}

	hand, err := parseHand(ed.Hand)
	if err != nil {
		return nil, err
	}
	voice := 0
	if ed.Voice != nil {
		voice = *ed.Voice
	}
	if err := checkVoice(voice, false); err != nil {
		return nil, err
	}

	var notes []Note
	switch {
	case ed.Pitch != nil:
		notes = []Note{{Pitch: ed.Pitch.value, Hand: hand, Voice: uint8(voice)}}
	case len(ed.Pitches) > 0:
		for _, p := range ed.Pitches {
			notes = append(notes, Note{Pitch: p.value, Hand: hand, Voice: uint8(voice)})
		}
	case len(ed.Notes) > 0:
		for _, nd := range ed.Notes {
			h, err := parseHand(nd.Hand)
			if err != nil {
				return nil, err
			}
			if err := checkVoice(nd.Voice, false); err != nil {
				return nil, err
			}
			notes = append(notes, Note{Pitch: nd.Pitch.value, Hand: h, Voice: uint8(nd.Voice)})
		}
	default:
		for _, gd := range ed.Groups {
			h, err := parseHand(gd.Hand)
			if err != nil {
				return nil, err
			}
			if err := checkVoice(gd.Voice, false); err != nil {
				return nil, err
			}
			if len(gd.Pitches) == 0 {
				return nil, fmt.Errorf("note group has no pitches")
			}
			for _, p := range gd.Pitches {
				notes = append(notes, Note{Pitch: p.value, Hand: h, Voice: uint8(gd.Voice)})
			}
		}
	}
	return notes, nil
}

func parseHand(s string) (Hand, error) {
	switch Hand(s) {
	case HandNone, HandLeft, HandRight:
		return Hand(s), nil
	default:
		return HandNone, fmt.Errorf("hand %q must be %q or %q", s, HandLeft, HandRight)
	}
}

func checkVoice(v int, required bool) error {
	if v == 0 && !required {
		return nil
	}
	if v < 1 || v > 4 {
		return fmt.Errorf("voice %d outside 1..4", v)
	}
	return nil
}

func parsePedalEvent(ed eventDoc) (Event, error) {
	if ed.Value == nil {
		return nil, fmt.Errorf("pedal event has no value")
	}
	if *ed.Value < 0 || *ed.Value > MaxPedalValue {
		return nil, fmt.Errorf("pedal value %d outside 0..%d", *ed.Value, MaxPedalValue)
	}
	duration := 0.0
	if ed.Duration != nil {
		duration = *ed.Duration
	}
	return PedalEvent{
		Start:    *ed.Start,
		Duration: duration,
		Value:    uint8(*ed.Value),
		Section:  ed.Section,
		Phrase:   ed.Phrase,
	}, nil
}

// parseTempoEvent enforces the exactly-one-of rule: an instant bpm or a
// full start_bpm/end_bpm/duration ramp, never both, never neither.
func parseTempoEvent(ed eventDoc) (Event, error) {
	hasInstant := ed.BPM != nil
	hasRampField := ed.StartBPM != nil || ed.EndBPM != nil || (ed.Duration != nil && !hasInstant)
	if hasInstant && (ed.StartBPM != nil || ed.EndBPM != nil) {
		return nil, fmt.Errorf("tempo event has both an instant bpm and ramp fields")
	}
	if !hasInstant && !hasRampField {
		return nil, fmt.Errorf("tempo event has neither an instant bpm nor a ramp")
	}
	if hasInstant {
		return TempoEvent{Start: *ed.Start, BPM: *ed.BPM}, nil
	}
	if ed.StartBPM == nil || ed.EndBPM == nil || ed.Duration == nil {
		return nil, fmt.Errorf("tempo ramp needs start_bpm, end_bpm and duration")
	}
	return TempoEvent{
		Start: *ed.Start,
		Ramp:  &TempoRamp{FromBPM: *ed.StartBPM, ToBPM: *ed.EndBPM, Beats: *ed.Duration},
	}, nil
}

// EncodeDocument renders a composition back to its interchange form.
// Pitches are written with canonical sharp spellings; hand/voice tags
// are preserved through the "notes" representation when present.
func EncodeDocument(c Composition) ([]byte, error) {
	bpm := c.BPM
	ppq := c.PPQ
	doc := document{
		Title:         c.Title,
		BPM:           &bpm,
		TimeSignature: &timeSignatureDoc{Numerator: c.TimeSignature.Numerator, Denominator: c.TimeSignature.Denominator},
		PPQ:           &ppq,
		KeySignature:  c.KeySignature,
	}
	if len(c.MusicalIntent) > 0 {
		doc.MusicalIntent = json.RawMessage(c.MusicalIntent)
	}
	for _, tr := range c.Tracks {
		channel := int(tr.Channel)
		program := int(tr.Program)
		td := trackDoc{
			Name:    tr.Name,
			Channel: &channel,
			Program: &program,
			Events:  make([]eventDoc, 0, len(tr.Events)),
		}
		for _, ev := range tr.Events {
			td.Events = append(td.Events, encodeEvent(ev))
		}
		doc.Tracks = append(doc.Tracks, td)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func encodeEvent(ev Event) eventDoc {
	switch e := ev.(type) {
	case NoteEvent:
		start, duration := e.Start, e.Duration
		velocity := int(e.Velocity)
		ed := eventDoc{
			Type:     "note",
			Start:    &start,
			Duration: &duration,
			Velocity: &velocity,
			Section:  e.Section,
			Phrase:   e.Phrase,
		}
		if tagged(e.Notes) {
			for _, n := range e.Notes {
				ed.Notes = append(ed.Notes, noteDoc{Pitch: pitchDoc{n.Pitch}, Hand: string(n.Hand), Voice: int(n.Voice)})
			}
		} else if len(e.Notes) == 1 {
			p := pitchDoc{e.Notes[0].Pitch}
			ed.Pitch = &p
		} else {
			for _, n := range e.Notes {
				ed.Pitches = append(ed.Pitches, pitchDoc{n.Pitch})
			}
		}
		return ed
	case PedalEvent:
		start, duration := e.Start, e.Duration
		value := int(e.Value)
		return eventDoc{
			Type:     "pedal",
			Start:    &start,
			Duration: &duration,
			Value:    &value,
			Section:  e.Section,
			Phrase:   e.Phrase,
		}
	case TempoEvent:
		start := e.Start
		if e.Ramp != nil {
			from, to, beats := e.Ramp.FromBPM, e.Ramp.ToBPM, e.Ramp.Beats
			return eventDoc{Type: "tempo", Start: &start, StartBPM: &from, EndBPM: &to, Duration: &beats}
		}
		bpm := e.BPM
		return eventDoc{Type: "tempo", Start: &start, BPM: &bpm}
	case SectionEvent:
		start := e.Start
		return eventDoc{Type: "section", Start: &start, Label: e.Label}
	default:
		return eventDoc{}
	}
}

func tagged(notes []Note) bool {
	for _, n := range notes {
		if n.Hand != HandNone || n.Voice != 0 {
			return true
		}
	}
	return false
}
