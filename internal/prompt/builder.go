package prompt

import (
	"fmt"
	"strings"

	"insight-report/internal/config"
	"insight-report/internal/stats"
)

const (
	LanguageEnglish = "en"
	LanguageChinese = "zh"

	// DefaultLanguage is what the "system" selector resolves to. The host
	// locale is deliberately not consulted.
	DefaultLanguage = LanguageEnglish

	SummaryMarker = "===SUMMARY==="
	DetailMarker  = "===DETAIL==="
)

// ResolveLanguage maps a configured language selector to a supported locale.
func ResolveLanguage(selector string) string {
	s := strings.ToLower(strings.TrimSpace(selector))
	switch {
	case s == LanguageEnglish || strings.HasPrefix(s, "en-"):
		return LanguageEnglish
	case s == LanguageChinese || strings.HasPrefix(s, "zh-"):
		return LanguageChinese
	default:
		return DefaultLanguage
	}
}

type messages struct {
	persona      string
	inputs       string
	contract     string
	periodDaily  string
	periodWeekly string
	readFirst    string
	defaultUser  string
	defaultAgent string
}

var catalog = map[string]messages{
	LanguageEnglish: {
		persona: "You are %s, a thoughtful assistant reviewing how %s used AI coding tools. " +
			"Write an honest, specific and encouraging review grounded only in the data provided.",
		inputs: "You may only read these files in the current directory:\n" +
			"- stats.json: aggregated usage statistics for the period\n" +
			"- index.json: report metadata and the list of projects\n" +
			"- chats/*.json: per-project conversation excerpts\n" +
			"Do not modify, create or delete any files and do not access anything outside this directory.",
		contract: "Your final answer must contain exactly two parts, in this order:\n" +
			SummaryMarker + "\n" +
			"A plain-text summary of at most two sentences.\n" +
			DetailMarker + "\n" +
			"The detailed review as HTML using only <section>, <h2>, <h3>, <p>, <ul>, <ol>, <li>, <strong>, <em>, <code> and <blockquote>. " +
			"No markdown, no code fences, no text outside these two parts.",
		periodDaily:  "Review my activity for %s.",
		periodWeekly: "Review my activity for the week of %s to %s.",
		readFirst:    "Start by reading stats.json and index.json, then the relevant files under chats/, before writing the review.",
		defaultUser:  "the user",
		defaultAgent: "Insight",
	},
	LanguageChinese: {
		persona: "你是%s，一位细致的助手，正在回顾%s使用 AI 编程工具的情况。" +
			"请仅基于提供的数据，写出真实、具体且鼓励性的回顾。",
		inputs: "你只能读取当前目录中的以下文件：\n" +
			"- stats.json：该周期的汇总使用统计\n" +
			"- index.json：报告元数据和项目列表\n" +
			"- chats/*.json：按项目划分的对话摘录\n" +
			"不要修改、创建或删除任何文件，也不要访问该目录之外的内容。",
		contract: "最终回答必须按顺序包含两个部分：\n" +
			SummaryMarker + "\n" +
			"不超过两句话的纯文本摘要。\n" +
			DetailMarker + "\n" +
			"使用 HTML 编写的详细回顾，只能使用 <section>、<h2>、<h3>、<p>、<ul>、<ol>、<li>、<strong>、<em>、<code> 和 <blockquote>。" +
			"不要使用 markdown 或代码块，也不要在这两个部分之外输出任何内容。",
		periodDaily:  "请回顾我在 %s 的活动。",
		periodWeekly: "请回顾我在 %s 至 %s 这一周的活动。",
		readFirst:    "请先阅读 stats.json 和 index.json，再阅读 chats/ 下的相关文件，然后撰写回顾。",
		defaultUser:  "用户",
		defaultAgent: "Insight",
	},
}

// Builder renders the system and user prompts for one language and persona.
type Builder struct {
	language      string
	displayName   string
	assistantName string
}

func NewBuilder(user config.UserConfig) *Builder {
	return &Builder{
		language:      ResolveLanguage(user.Language),
		displayName:   strings.TrimSpace(user.DisplayName),
		assistantName: strings.TrimSpace(user.AssistantName),
	}
}

// Language returns the resolved locale.
func (b *Builder) Language() string {
	return b.language
}

func (b *Builder) SystemPrompt() string {
	m := catalog[b.language]
	user := b.displayName
	if user == "" {
		user = m.defaultUser
	}
	assistant := b.assistantName
	if assistant == "" {
		assistant = m.defaultAgent
	}
	return strings.Join([]string{
		fmt.Sprintf(m.persona, assistant, user),
		m.inputs,
		m.contract,
	}, "\n\n")
}

// UserPrompt names the review period and asks the agent to read the export
// directory before writing.
func (b *Builder) UserPrompt(period stats.Period) string {
	m := catalog[b.language]
	start, end := dateOf(period.Start), dateOf(period.End)

	var line string
	if period.Type == stats.ReportTypeWeekly {
		line = fmt.Sprintf(m.periodWeekly, start, end)
	} else {
		line = fmt.Sprintf(m.periodDaily, start)
	}
	return line + "\n" + m.readFirst
}

func dateOf(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
