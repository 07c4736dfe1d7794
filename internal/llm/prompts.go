package llm

import "fmt"

// Chat modes select the assistant persona for a conversation.
const (
	ModeCV        = "cv"
	ModeInterview = "interview"
)

// GreetingPrompt is the connectivity probe used by the health route.
const GreetingPrompt = "Say hello to the Kion Consulting Hackathon in one friendly sentence."

// BuildProfilePrompt asks the model to turn an informal self-description
// into the profile JSON document.
func BuildProfilePrompt(rawText, language string) (prompt string) {
	prompt = fmt.Sprintf(`You are helping a South African youth write a job-ready profile.

The youth wrote the following about themselves (informal, mixed language):

"""%s"""

1. Read what they wrote.
2. Extract:
   - name (if mentioned, else null)
   - location (if mentioned, else null)
   - education (best guess or 'Unknown')
   - key skills (list)
   - informal experience (list, convert to professional wording)
   - languages (list, if mentioned or easily inferred)
3. Return ONLY valid JSON in this format:

{
  "name": "...",
  "location": "...",
  "education": "...",
  "skills": ["..."],
  "experience": [
    {
      "role": "...",
      "description": "..."
    }
  ],
  "languages": ["English"],
  "summary": "Short friendly summary for a CV, suitable for South African employers."
}

Respond in %s.
`, rawText, language)

	return prompt
}

// BuildCVPrompt asks for a plain-text CV from profileText. When targetRole
// is non-empty the CV is tailored to that role.
func BuildCVPrompt(profileText, targetRole string) (prompt string) {
	target := "Write it in clear, simple English, suitable for South African entry-level jobs."
	if targetRole != "" {
		target = fmt.Sprintf(`The youth is applying for this role: %s
Put the skills and experience most relevant to that role first, and mention
the role in the summary. Do not invent experience they do not have.

Write it in clear, simple English, suitable for South African employers.`, targetRole)
	}

	prompt = fmt.Sprintf(`You are a helpful assistant generating a clean, simple CV for a South African youth.

Use the following profile data:

PROFILE:
%s

Create a CV with clearly separated sections:
- Personal Details (name, location - keep it simple, no full address)
- Summary (2-3 lines, friendly and positive)
- Education
- Work Experience OR Informal Experience (use professional wording)
- Skills (bullet list)
- Languages

%s
No JSON, just the CV text.
`, profileText, target)

	return prompt
}

// ChatInstruction returns the system message for a chat mode. ok is false
// for an unknown mode.
func ChatInstruction(mode, language string) (instruction string, ok bool) {
	switch mode {
	case ModeCV:
		instruction = fmt.Sprintf(`You are a friendly career coach helping a South African youth build their CV through conversation.
Ask one short question at a time about their education, informal work, skills and languages.
Turn what they tell you into professional wording and encourage them.
Keep every reply under 80 words. Reply in %s.`, language)
	case ModeInterview:
		instruction = fmt.Sprintf(`You are a patient job interviewer running a practice interview with a South African youth applying for an entry-level job.
Ask one interview question at a time. After each answer give one sentence of kind, specific feedback, then ask the next question.
Keep every reply under 80 words. Reply in %s.`, language)
	default:
		return "", false
	}
	return instruction, true
}
