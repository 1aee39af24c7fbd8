// ABOUTME: System instructions and user prompt templates for the two analysis kinds
// ABOUTME: Hint prompts guide without solving; complexity prompts ask for Big O with reasons

package analysis

import "fmt"

// Kind selects which assistant persona answers a request.
type Kind int

const (
	KindHint Kind = iota
	KindComplexity
)

func (k Kind) String() string {
	switch k {
	case KindHint:
		return "hint"
	case KindComplexity:
		return "complexity"
	default:
		return "unknown"
	}
}

const hintInstruction = "You are a helpful coding mentor for LeetCode problems. " +
	"When given a problem description and current code:\n" +
	"1. Understand the problem requirements\n" +
	"2. Analyze the current approach\n" +
	"3. Provide hints without giving away the complete solution\n" +
	"4. Suggest data structures or algorithms that might help\n" +
	"5. Point out common pitfalls or edge cases to consider\n\n" +
	"Guide the user to discover the solution themselves. Be encouraging and educational."

const complexityInstruction = "You are an expert algorithm complexity analyzer for LeetCode problems. " +
	"When given code and programming language:\n" +
	"1. Analyze the time complexity (Big O notation)\n" +
	"2. Analyze the space complexity (Big O notation)\n" +
	"3. Explain why the code has this complexity\n" +
	"4. Identify any bottlenecks or inefficient operations\n" +
	"5. Suggest potential optimizations if applicable\n\n" +
	"Provide clear, concise explanations suitable for learning."

const hintTemplate = `The user is working on the following problem:

%s

Their current code in %s:
` + "```%s\n%s\n```" + `

Provide helpful hints and guidance:
1. Analyze their current approach
2. Suggest data structures or algorithms that might help
3. Point out common pitfalls or edge cases
4. Give hints without revealing the complete solution
5. Be encouraging and educational

Remember to guide them to discover the solution themselves.`

const complexityTemplate = `The user is working on the following problem:
%s

Analyze the following %s code and provide:
1. Time Complexity (Big O notation)
2. Space Complexity (Big O notation)
3. Detailed explanation of why the code has this complexity
4. Any bottlenecks or inefficient operations
5. Optimization suggestions if applicable

Code:
` + "```\n%s\n```"

// instruction returns the system message for k.
func instruction(k Kind) string {
	if k == KindComplexity {
		return complexityInstruction
	}
	return hintInstruction
}

// userPrompt renders the user turn for k.
func userPrompt(k Kind, r Request) string {
	if k == KindComplexity {
		return fmt.Sprintf(complexityTemplate, r.ProblemDescription, r.Language, r.Code)
	}
	return fmt.Sprintf(hintTemplate, r.ProblemDescription, r.Language, r.Language, r.Code)
}
