package notify

import "fmt"

// Kind tells the dispatcher what to do with an instruction.
type Kind string

const (
	KindDirectMessage Kind = "direct_message"
	KindChannelPost   Kind = "channel_post"
	KindReview        Kind = "review"
)

// Button is one inline action attached to a review.
type Button struct {
	Label string
	Data  string
}

// Instruction is a single outbound message. ChatID is ignored for channel
// posts: the dispatcher owns the channel target.
type Instruction struct {
	Kind     Kind
	ChatID   int64
	ImageRef string
	Text     string
	Buttons  []Button
}

func DirectMessage(chatID int64, text string) Instruction {
	return Instruction{Kind: KindDirectMessage, ChatID: chatID, Text: text}
}

func ChannelPost(imageRef, caption string) Instruction {
	return Instruction{Kind: KindChannelPost, ImageRef: imageRef, Text: caption}
}

func Review(adminID int64, imageRef, caption string, buttons ...Button) Instruction {
	return Instruction{Kind: KindReview, ChatID: adminID, ImageRef: imageRef, Text: caption, Buttons: buttons}
}

func (i Instruction) String() string {
	if i.Kind == KindChannelPost {
		return string(i.Kind)
	}

	return fmt.Sprintf("%s to %d", i.Kind, i.ChatID)
}
