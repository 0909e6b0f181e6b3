package assist

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	summarySentences  = 2
	basePrice         = 10
	creditsPerWord    = 2
	tipSubjectMissing = "tài liệu này"
)

var studyTipTemplates = []string{
	"Chia %s thành từng phần 25 phút, nghỉ 5 phút rồi tự kiểm tra lại nhé!",
	"Đọc lướt %s trước, sau đó tóm tắt mỗi phần bằng 3 ý chính của riêng bạn.",
	"Giảng lại %s cho một người bạn: chỗ nào nói vấp là chỗ cần ôn thêm.",
	"Làm thử câu hỏi về %s trước khi đọc lời giải để nhớ lâu hơn.",
}

// HeuristicAnalyzer derives suggestions from the draft text without any remote call.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer constructs the local analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

func (a *HeuristicAnalyzer) Analyze(ctx context.Context, title, content string) (Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return Suggestion{}, err
	}
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" && content == "" {
		return Suggestion{}, ErrEmptyInput
	}

	summary := leadingSentences(content, summarySentences)
	if summary == "" {
		summary = fmt.Sprintf("%s: tài liệu ôn tập ngắn gọn, dễ theo dõi.", title)
	}
	words := len(strings.Fields(content))
	return Suggestion{
		Summary: summary,
		Tags:    titleTags(title),
		Price:   ClampPrice(int64(basePrice + words*creditsPerWord)),
	}, nil
}

func (a *HeuristicAnalyzer) StudyTip(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := strings.TrimSpace(title)
	if subject == "" {
		subject = tipSubjectMissing
	} else {
		subject = fmt.Sprintf("%q", subject)
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(subject))
	template := studyTipTemplates[hasher.Sum32()%uint32(len(studyTipTemplates))]
	return fmt.Sprintf(template, subject), nil
}

func leadingSentences(text string, count int) string {
	var builder strings.Builder
	found := 0
	for _, r := range text {
		builder.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			found++
			if found == count {
				break
			}
		}
	}
	return strings.TrimSpace(builder.String())
}

// titleTags turns each dash-separated title segment into a CamelCase hashtag without diacritics.
func titleTags(title string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, segment := range strings.Split(title, "-") {
		tag := hashtag(segment)
		if tag == "" {
			continue
		}
		if _, duplicate := seen[tag]; duplicate {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxSuggestedTags {
			break
		}
	}
	return tags
}

func hashtag(segment string) string {
	folded, _, err := transform.String(foldDiacritics(), segment)
	if err != nil {
		return ""
	}
	var builder strings.Builder
	for _, word := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		runesOfWord := []rune(strings.ToLower(word))
		runesOfWord[0] = unicode.ToUpper(runesOfWord[0])
		builder.WriteString(string(runesOfWord))
	}
	if builder.Len() == 0 {
		return ""
	}
	return "#" + builder.String()
}

func foldDiacritics() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			switch r {
			case 'đ':
				return 'd'
			case 'Đ':
				return 'D'
			}
			return r
		}),
		norm.NFC,
	)
}
