package tortoise

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// Motto closes every Tortoise reply.
const Motto = "Life is teaching, never stop learning."

// Found is the catalog material gathered for one message.
type Found struct {
	Books      []model.Book      `json:"books"`
	Challenges []model.Challenge `json:"challenges"`
}

// Empty reports whether nothing was found.
func (f Found) Empty() bool {
	return len(f.Books) == 0 && len(f.Challenges) == 0
}

// Recommendations lists what was offered, books first.
func (f Found) Recommendations() []model.Recommendation {
	out := make([]model.Recommendation, 0, len(f.Books)+len(f.Challenges))
	for _, b := range f.Books {
		out = append(out, model.Recommendation{Kind: "book", ID: b.ID, Title: b.Title, Tags: b.Tags})
	}
	for _, c := range f.Challenges {
		out = append(out, model.Recommendation{Kind: "challenge", ID: c.ID, Title: c.Title, Tags: c.Tags})
	}
	return out
}

// PromptContext is everything the chat prompts are built from.
type PromptContext struct {
	Message     string
	Intent      model.Intent
	Preferences model.Preferences
	Found       Found
}

const systemPromptHeader = `You are the Tortoise, a wise AI learning companion for LifelongLearners platform. Your motto is "` + Motto + `"

Your personality:
- Wise, patient, and encouraging like a tortoise
- Passionate about lifelong learning
- Supportive and motivational
- Practical and actionable in advice
- Culturally aware (support both English and Amharic learners)

Your capabilities:
- Recommend books from our curated library
- Suggest learning challenges
- Create personalized learning plans
- Provide motivation and wisdom
- Support multiple languages (especially English and Amharic)

Guidelines:
- Always be encouraging and positive
- Provide specific, actionable advice
- Reference the platform's resources when relevant
- Keep responses concise but helpful
- End responses with motivational elements
- Use the tortoise wisdom: slow and steady wins the race
`

// SystemPrompt describes the Tortoise and the learner it is talking to.
func SystemPrompt(pc PromptContext) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\nContext about the user:\n")

	if pc.Preferences.IsZero() {
		b.WriteString("No preferences set\n")
	} else {
		b.WriteString("User preferences: " + compactJSON(pc.Preferences) + "\n")
	}
	if len(pc.Preferences.LearningInterests) == 0 {
		b.WriteString("No interests recorded\n")
	} else {
		b.WriteString("User interests: " + strings.Join(pc.Preferences.LearningInterests, ", ") + "\n")
	}
	if pc.Found.Empty() {
		b.WriteString("No search results")
	} else {
		b.WriteString("Available resources found: " + compactJSON(pc.Found))
	}
	return b.String()
}

// UserPrompt frames the learner's message with the intent and resources found.
func UserPrompt(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message: %q\nDetected intent: %s", pc.Message, pc.Intent)

	if len(pc.Found.Books) > 0 {
		b.WriteString("\n\nRelevant books found:")
		for i, book := range pc.Found.Books {
			fmt.Fprintf(&b, "\n%d. %q by %s (%s, %s)", i+1, book.Title, book.Author, book.Language, book.Format)
			fmt.Fprintf(&b, "\n   Description: %s", deref(book.Description))
			fmt.Fprintf(&b, "\n   Tags: %s", strings.Join(book.Tags, ", "))
		}
	}
	if len(pc.Found.Challenges) > 0 {
		b.WriteString("\n\nRelevant challenges found:")
		for i, c := range pc.Found.Challenges {
			fmt.Fprintf(&b, "\n%d. %q (%s)", i+1, c.Title, c.Type)
			fmt.Fprintf(&b, "\n   Description: %s", deref(c.Description))
			fmt.Fprintf(&b, "\n   Difficulty: %s", c.DifficultyLevel)
			fmt.Fprintf(&b, "\n   Tags: %s", strings.Join(c.Tags, ", "))
		}
	}

	lang := pc.Preferences.LanguagePreference
	difficulty := pc.Preferences.Difficulty()
	if lang != "" || difficulty != "" {
		b.WriteString("\n\nUser context:")
		if lang != "" {
			b.WriteString("\nPreferred language: " + lang)
		}
		if difficulty != "" {
			b.WriteString("\nPreferred difficulty: " + difficulty)
		}
	}

	b.WriteString("\n\nPlease provide a helpful response as the Tortoise. If you found relevant resources above, " +
		"incorporate them naturally into your response. Always end with encouragement and remind them that \"" +
		strings.ToLower(Motto[:1]) + Motto[1:] + "\"")
	return b.String()
}

const planSystemPrompt = `You are the Tortoise, creating personalized learning plans. Create a structured, practical learning plan that follows the "slow and steady wins the race" philosophy.`

// PlanPrompt asks for a phased plan toward goals.
func PlanPrompt(goals, level, commitment string) string {
	return fmt.Sprintf(`Create a learning plan for:
Goals: %s
Current level: %s
Time commitment: %s

Format as a structured plan with weeks/phases, daily activities, and milestones.`, goals, level, commitment)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
