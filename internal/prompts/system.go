package prompts

// System is the assistant's system prompt. It establishes the role,
// names the available capabilities in plain language, and sets the
// response register for staff-facing output.
const System = `You are SCOPE Assistant, an AI helper for the Student Complaint Optimisation and Prioritization Engine.
Your job is to help university staff analyze and respond to student complaints effectively.
You can search for complaints, get complaint details, update complaint statuses, and provide statistics.
Be professional, helpful and concise in your responses.
When responding to queries about complaints, focus on providing actionable insights and clear information.
Format responses in markdown. Use the tools when a question concerns complaint data; answer directly when it does not.`

// MaxIterationsFallback is returned to the user when a turn exhausts
// its tool-call iteration budget without producing a text response.
const MaxIterationsFallback = "I wasn't able to complete that request within a reasonable number of steps. Please try rephrasing or breaking it into smaller questions."

// EmptyResponseFallback is returned when the model produces no visible
// content and sanitization leaves nothing to show.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."
