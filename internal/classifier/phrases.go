package classifier

// Category groups phrases by the intent they signal.
type Category string

const (
	CategoryVoicemail Category = "voicemail"
	CategoryCallEnd   Category = "call_end"
	CategoryTransfer  Category = "transfer"
)

// Kind splits indicators by confidence. A single strong match decides;
// weak matches need at least two distinct phrases.
type Kind string

const (
	KindStrong Kind = "strong"
	KindWeak   Kind = "weak"
)

// Phrase is one entry in the indicator table. Adding a language or a
// phrase is a data change, not a code change.
type Phrase struct {
	Category Category
	Language string
	Text     string
	Kind     Kind
}

var phraseTable = []Phrase{
	// Voicemail, strong: answering-machine boilerplate.
	{CategoryVoicemail, "en", "voice mail", KindStrong},
	{CategoryVoicemail, "en", "voicemail", KindStrong},
	{CategoryVoicemail, "en", "voice message", KindStrong},
	{CategoryVoicemail, "en", "please record your message", KindStrong},
	{CategoryVoicemail, "en", "at the tone", KindStrong},
	{CategoryVoicemail, "en", "leave a message", KindStrong},
	{CategoryVoicemail, "en", "after the beep", KindStrong},
	{CategoryVoicemail, "en", "record your message", KindStrong},
	{CategoryVoicemail, "en", "mailbox is full", KindStrong},
	{CategoryVoicemail, "en", "forwarded to voice mail", KindStrong},

	// Voicemail, weak: phrasing that also occurs in live speech.
	{CategoryVoicemail, "en", "not available", KindWeak},
	{CategoryVoicemail, "en", "can't come to the phone", KindWeak},
	{CategoryVoicemail, "en", "please leave", KindWeak},
	{CategoryVoicemail, "en", "subscriber you have called", KindWeak},
	{CategoryVoicemail, "en", "the person you're trying to reach", KindWeak},
	{CategoryVoicemail, "en", "is not available at this time", KindWeak},
	{CategoryVoicemail, "en", "please try your call again", KindWeak},

	// Call-end intent.
	{CategoryCallEnd, "en", "goodbye", KindStrong},
	{CategoryCallEnd, "en", "bye", KindStrong},
	{CategoryCallEnd, "en", "good bye", KindStrong},
	{CategoryCallEnd, "en", "see you", KindStrong},
	{CategoryCallEnd, "en", "hang up", KindStrong},
	{CategoryCallEnd, "en", "end call", KindStrong},
	{CategoryCallEnd, "en", "end the call", KindStrong},
	{CategoryCallEnd, "en", "that's all", KindStrong},
	{CategoryCallEnd, "en", "thank you goodbye", KindStrong},
	{CategoryCallEnd, "en", "i have to go", KindStrong},
	{CategoryCallEnd, "en", "gotta go", KindStrong},
	{CategoryCallEnd, "en", "got to go", KindStrong},
	{CategoryCallEnd, "en", "talk to you later", KindStrong},
	{CategoryCallEnd, "en", "talk later", KindStrong},
	{CategoryCallEnd, "en", "i'm done", KindStrong},
	{CategoryCallEnd, "en", "we're done", KindStrong},
	{CategoryCallEnd, "en", "that's it", KindStrong},
	{CategoryCallEnd, "en", "have a good day", KindStrong},
	{CategoryCallEnd, "en", "have a nice day", KindStrong},
	{CategoryCallEnd, "en", "catch you later", KindStrong},
	{CategoryCallEnd, "en", "see ya", KindStrong},
	{CategoryCallEnd, "en", "later", KindStrong},
	{CategoryCallEnd, "en", "thanks, bye", KindStrong},
	{CategoryCallEnd, "en", "okay bye", KindStrong},
	{CategoryCallEnd, "en", "alright bye", KindStrong},

	// Transfer-to-human intent.
	{CategoryTransfer, "en", "speak to a human", KindStrong},
	{CategoryTransfer, "en", "talk to a human", KindStrong},
	{CategoryTransfer, "en", "human agent", KindStrong},
	{CategoryTransfer, "en", "transfer to human", KindStrong},
	{CategoryTransfer, "en", "transfer me to", KindStrong},
	{CategoryTransfer, "en", "real person", KindStrong},
	{CategoryTransfer, "en", "live agent", KindStrong},
	{CategoryTransfer, "en", "customer service", KindStrong},
	{CategoryTransfer, "en", "representative", KindStrong},
	{CategoryTransfer, "en", "speak to someone", KindStrong},
	{CategoryTransfer, "en", "talk to someone", KindStrong},
	{CategoryTransfer, "en", "human please", KindStrong},
	{CategoryTransfer, "en", "transfer my call", KindStrong},
	{CategoryTransfer, "en", "get me a human", KindStrong},
	{CategoryTransfer, "en", "i need a human", KindStrong},
	{CategoryTransfer, "en", "speak with a person", KindStrong},
	{CategoryTransfer, "en", "talk with a person", KindStrong},
	{CategoryTransfer, "en", "connect me to", KindStrong},
	{CategoryTransfer, "en", "transfer me", KindStrong},
	{CategoryTransfer, "en", "human operator", KindStrong},
	{CategoryTransfer, "en", "real agent", KindStrong},
	{CategoryTransfer, "en", "actual person", KindStrong},
	{CategoryTransfer, "en", "not a bot", KindStrong},
	{CategoryTransfer, "en", "i want to talk to", KindStrong},
	{CategoryTransfer, "en", "let me speak to", KindStrong},
	{CategoryTransfer, "en", "put me through", KindStrong},
}
