package analysis

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/realm"
)

// buildAnalysisPrompt asks for a markdown study guide with placeholder
// markers and one code block per marker.
func (s *Service) buildAnalysisPrompt() string {
	return fmt.Sprintf(`You are an experienced instructor who turns course material into clear, engaging study guides. Read the attached document carefully.

Write a study guide in GitHub-flavored markdown that covers:
- A short overview of the document
- The key concepts, each with a plain-language explanation
- Worked examples where the material allows it
- A summary of the most important takeaways

Where an interactive visualization or a short quiz would help a student understand a concept, insert a placeholder on its own line:

{{VISUALIZATION:<id>:<description>}}

<id> is a short unique token such as viz1, viz2. <description> is one sentence describing what the visualization shows. Use between 2 and %d placeholders.

After the study guide, write the code for every placeholder, each wrapped exactly like this:

{{VISUALIZATION_CODE_START:<id>:<description>}}
<code>
{{VISUALIZATION_CODE_END:<id>}}

%s`, s.maxVisualizations, codeRules())
}

// buildGenerationPrompt asks for the code of a single visualization.
func (s *Service) buildGenerationPrompt(description string) string {
	return fmt.Sprintf(`You are building one interactive visualization for a study guide about the attached document.

The visualization must show: %s

%s

Respond with ONLY the component source code. Do not include explanations.`, description, codeRules())
}

func codeRules() string {
	globals := realm.Preseeded()
	return fmt.Sprintf(`CODE RULES:
1. Write a single React function component named App using hooks. Use JSX.
2. Do not write import or export statements. These globals are already available: %s.
3. Use realistic data drawn from the document. Declare data inside the component file.
4. Use Recharts for charts. Make charts responsive with ResponsiveContainer and give them a fixed height.
5. Style with inline styles only. Do not fetch anything from the network.
6. Quizzes must give immediate feedback on each answer and show a final score.`, strings.Join(globals, ", "))
}
