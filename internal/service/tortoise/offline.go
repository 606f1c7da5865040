package tortoise

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lifelonglearners/tortoise/internal/model"
)

var quotes = []string{
	"The journey of a thousand miles begins with a single step.",
	"Learning never exhausts the mind.",
	"The beautiful thing about learning is that no one can take it away from you.",
	"Every expert was once a beginner.",
	"The capacity to learn is a gift; the ability to learn is a skill; the willingness to learn is a choice.",
}

// OfflineInput is what the template responder knows about a message.
type OfflineInput struct {
	Intent    model.Intent
	Name      string
	Role      model.UserRole
	Interests []string
	Found     Found
	Joined    int // challenges the learner has joined
}

// Offline answers from templates when no language model is available.
type Offline struct {
	now  func() time.Time
	pick func(n int) int
}

// NewOffline returns a responder using the wall clock and a random quote.
func NewOffline() *Offline {
	return &Offline{now: time.Now, pick: rand.IntN}
}

// Respond renders the template for in.Intent.
func (o *Offline) Respond(in OfflineInput) string {
	name := firstName(in.Name)
	switch in.Intent {
	case model.IntentBookRequest:
		return o.books(name, in)
	case model.IntentChallengeRequest:
		return o.challenges(name, in)
	case model.IntentMotivationRequest:
		return o.motivation(name, in)
	case model.IntentPlanRequest:
		return o.plan(name, in.Found)
	case model.IntentProgressInquiry:
		return o.progress(name, in)
	default:
		return o.greeting(name, in)
	}
}

func (o *Offline) books(name string, in OfflineInput) string {
	var b strings.Builder
	if len(in.Found.Books) == 0 {
		fmt.Fprintf(&b, "Hi %s! I'd love to help you find some great books. ", name)
		if len(in.Interests) > 0 {
			fmt.Fprintf(&b, "You've shown interest in %s. ", strings.Join(in.Interests, ", "))
		}
		b.WriteString("Could you tell me more about the topics you're curious about right now?\n\n" + Motto)
		return b.String()
	}

	fmt.Fprintf(&b, "Hello %s! Here are some books from our library that fit your journey:\n\n", name)
	for i, book := range in.Found.Books {
		fmt.Fprintf(&b, "%d. **%s** by %s\n", i+1, book.Title, book.Author)
		if d := deref(book.Description); d != "" {
			b.WriteString("   " + d + "\n")
		}
		fmt.Fprintf(&b, "   Format: %s | Language: %s\n", book.Format, book.Language)
	}
	b.WriteString("\nRead a little every day. Slow and steady wins the race! " + Motto)
	return b.String()
}

func (o *Offline) challenges(name string, in OfflineInput) string {
	var b strings.Builder
	if len(in.Found.Challenges) == 0 {
		fmt.Fprintf(&b, "Hi %s! I'd love to help you find an engaging challenge. ", name)
		if in.Role == model.RoleCreator {
			b.WriteString("As a creator, you might also consider publishing a challenge that matches your expertise. ")
		}
		b.WriteString("Which skills would you like to develop? I can suggest reading, coding, speaking or custom challenges.\n\n" + Motto)
		return b.String()
	}

	fmt.Fprintf(&b, "Wonderful, %s! These challenges match your learning style:\n\n", name)
	for i, c := range in.Found.Challenges {
		state := "Starting soon"
		if c.Status == model.StatusActive {
			state = "Currently active"
		}
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, c.Title, c.Type)
		if d := deref(c.Description); d != "" {
			b.WriteString("   " + d + "\n")
		}
		fmt.Fprintf(&b, "   %s | Difficulty: %s\n", state, c.DifficultyLevel)
	}
	switch {
	case in.Joined == 0:
		b.WriteString("\nThis could be your first challenge. Every expert was once a beginner! ")
	case in.Joined < 3:
		b.WriteString("\nYou're building great learning momentum! ")
	default:
		b.WriteString("\nYou're becoming quite the challenge champion! ")
	}
	b.WriteString(Motto)
	return b.String()
}

func (o *Offline) motivation(name string, in OfflineInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s! As your learning companion, I want to remind you that ", name)
	if in.Joined > 0 {
		plural := ""
		if in.Joined > 1 {
			plural = "s"
		}
		fmt.Fprintf(&b, "you're already on an amazing journey. You've joined %d challenge%s, which shows your commitment to growth.\n\n", in.Joined, plural)
	} else {
		b.WriteString("every learning journey starts with curiosity, and you're here, ready to grow.\n\n")
	}
	fmt.Fprintf(&b, "\"%s\"\n\n", quotes[o.pick(len(quotes))])
	b.WriteString("You don't need to rush. Keep moving forward one step at a time. " + Motto)
	return b.String()
}

func (o *Offline) plan(name string, found Found) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Excellent question, %s! Here is a learning path for you.\n\n", name)

	b.WriteString("**Phase 1: Foundation Building (Weeks 1-2)**\n")
	if book, ok := foundationBook(found.Books); ok {
		fmt.Fprintf(&b, "- Start with %q to build your foundation\n", book.Title)
	}
	b.WriteString("- Dedicate 30 minutes daily to reading and note-taking\n\n")

	b.WriteString("**Phase 2: Active Practice (Weeks 3-4)**\n")
	if len(found.Challenges) > 0 {
		fmt.Fprintf(&b, "- Join %q to apply what you've learned\n", found.Challenges[0].Title)
	}
	b.WriteString("- Practice daily with small, consistent actions\n\n")

	b.WriteString("**Phase 3: Skill Mastery (Weeks 5-8)**\n")
	b.WriteString("- Take on more advanced challenges\n")
	b.WriteString("- Share your knowledge with the community\n")
	b.WriteString("- Track your progress and celebrate milestones\n\n")

	fmt.Fprintf(&b, "Remember, %s: slow, steady and persistent wins the race. %s", name, Motto)
	return b.String()
}

func foundationBook(books []model.Book) (model.Book, bool) {
	for _, book := range books {
		if book.DifficultyLevel != nil && *book.DifficultyLevel == model.DifficultyBeginner {
			return book, true
		}
	}
	if len(books) > 0 {
		return books[0], true
	}
	return model.Book{}, false
}

func (o *Offline) progress(name string, in OfflineInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Great question, %s! ", name)
	if in.Joined > 0 {
		fmt.Fprintf(&b, "You've joined %d challenge(s) so far. Consider exploring a new topic or a slightly harder goal next.\n\n", in.Joined)
	} else {
		b.WriteString("You haven't joined a challenge yet. A beginner-friendly one is a great way to start.\n\n")
	}
	b.WriteString("Progress isn't about speed, it's about consistency. " + Motto)
	return b.String()
}

func (o *Offline) greeting(name string, in OfflineInput) string {
	hour := o.now().Hour()
	greeting := "Good evening"
	switch {
	case hour < 12:
		greeting = "Good morning"
	case hour < 17:
		greeting = "Good afternoon"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s, %s! ", greeting, name)
	if in.Joined > 0 {
		b.WriteString("I see you're working on your learning challenges. That's the spirit! ")
	}
	b.WriteString("I'm the Tortoise, your learning companion. I can help you:\n")
	b.WriteString("- Find books that match your interests\n")
	b.WriteString("- Discover challenges to grow your skills\n")
	b.WriteString("- Create personalized learning roadmaps\n")
	b.WriteString("- Stay motivated on your journey\n\n")
	b.WriteString("What would you like to explore today? " + Motto)
	return b.String()
}

// Plan renders the phased plan template for goals.
func (o *Offline) Plan(goals, level, commitment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Learning plan: %s**\nLevel: %s | Time: %s\n\n", goals, level, commitment)
	b.WriteString(o.plan("friend", Found{}))
	return b.String()
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "friend"
}
