package ai

// Preamble is the synthetic exchange placed before the first real question so
// the model treats the audio as shared context.
type Preamble struct {
	Instruction    string
	Acknowledgment string
}

// DefaultPreamble is used unless the caller supplies its own.
var DefaultPreamble = Preamble{
	Instruction:    "I'm sharing an audio file with you. Please listen to it carefully so you can answer questions about it.",
	Acknowledgment: "I've received and listened to the audio file. I'm ready to answer any questions you have about it - whether about the music, instruments, lyrics, mood, or any other aspects of the audio.",
}

// Turns builds the two priming turns: the audio plus the instruction as a
// user turn, then the acknowledgment as a model turn.
func (p Preamble) Turns(audio Part) []Turn {
	return []Turn{
		{Role: RoleUser, Parts: []Part{audio, TextPart(p.Instruction)}},
		{Role: RoleModel, Parts: []Part{TextPart(p.Acknowledgment)}},
	}
}
