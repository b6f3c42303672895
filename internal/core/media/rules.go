// Package media решает, нужно ли скачивать вложение, куда и под каким именем.
package media

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dlclark/regexp2"

	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/pkg/sizeunit"
)

// DefaultFilePattern — шаблон имени файла, если он не задан ни в правиле, ни глобально.
const DefaultFilePattern = "{date[year]}-{date[month]}-{date[day]}_{date[hour]}-{date[minute]}-{date[second]}_{message[id]}_{file[name]}.{file[ext]}"

const regexTimeout = time.Second

// SkipReason объясняет, почему вложение не будет скачано. Это не ошибка.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipNoRuleMatched  SkipReason = "no_rule_matched"
	SkipNoDownloadPath SkipReason = "no_download_path"
)

// Settings — настройки скачивания одного уровня.
type Settings struct {
	DownloadPath string
	FilePattern  string
}

// RuleConfig — правило в том виде, в каком оно задано в конфигурации.
// Незаданный предикат совпадает всегда.
type RuleConfig struct {
	MediaKind  domain.MediaKind
	MimeType   string
	MimeTypeRe string
	ChatTypes  []domain.ChatType
	ChatIDs    []int64
	MaxSize    string

	Settings
}

type rule struct {
	kind      domain.MediaKind
	mime      string
	mimeRe    *regexp2.Regexp
	chatTypes map[domain.ChatType]struct{}
	chatIDs   map[int64]struct{}
	maxSize   int64
	hasMax    bool
	settings  Settings
}

// RuleSet — упорядоченный список правил и глобальные настройки.
// Неизменяем после создания.
type RuleSet struct {
	rules  []rule
	global Settings
}

// Resolved — настройки, выбранные для вложения.
type Resolved struct {
	// Rule — индекс совпавшего правила.
	Rule         int
	DownloadPath string
	FilePattern  string
}

// chain — цепочка источников настроек в порядке приоритета:
// правило, глобальные настройки, значения по умолчанию.
type chain []Settings

var defaults = Settings{FilePattern: DefaultFilePattern}

func newChain(r Settings, global Settings) chain {
	return chain{r, global, defaults}
}

func (c chain) first(field func(Settings) string) string {
	for _, tier := range c {
		if v := field(tier); v != "" {
			return v
		}
	}
	return ""
}

func (c chain) downloadPath() string {
	return c.first(func(s Settings) string { return s.DownloadPath })
}

func (c chain) filePattern() string {
	return c.first(func(s Settings) string { return s.FilePattern })
}

// NewRuleSet компилирует правила. Регулярные выражения, размеры и шаблоны
// имен проверяются сразу, ошибки оборачивают domain.ErrConfiguration.
func NewRuleSet(global Settings, configs []RuleConfig) (*RuleSet, error) {
	rs := &RuleSet{global: global}

	if len(configs) == 0 {
		configs = []RuleConfig{{}}
	}

	for i, cfg := range configs {
		r, err := compileRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("media rule #%d: %w", i+1, err)
		}
		if err := ValidatePattern(newChain(r.settings, global).filePattern()); err != nil {
			return nil, fmt.Errorf("media rule #%d: %w", i+1, err)
		}
		rs.rules = append(rs.rules, r)
	}

	return rs, nil
}

func compileRule(cfg RuleConfig) (rule, error) {
	r := rule{
		kind:     cfg.MediaKind,
		mime:     cfg.MimeType,
		settings: cfg.Settings,
	}

	switch cfg.MediaKind {
	case "", domain.MediaKindPhoto, domain.MediaKindFile:
	default:
		return rule{}, fmt.Errorf("%w: unknown media_kind %q", domain.ErrConfiguration, cfg.MediaKind)
	}

	if cfg.MimeTypeRe != "" {
		re, err := regexp2.Compile(`^(?:`+cfg.MimeTypeRe+`)$`, regexp2.None)
		if err != nil {
			return rule{}, fmt.Errorf("%w: mime_type_re %q: %v", domain.ErrConfiguration, cfg.MimeTypeRe, err)
		}
		re.MatchTimeout = regexTimeout
		r.mimeRe = re
	}

	if len(cfg.ChatTypes) > 0 {
		r.chatTypes = make(map[domain.ChatType]struct{}, len(cfg.ChatTypes))
		for _, t := range cfg.ChatTypes {
			r.chatTypes[t] = struct{}{}
		}
	}

	if len(cfg.ChatIDs) > 0 {
		r.chatIDs = make(map[int64]struct{}, len(cfg.ChatIDs))
		for _, id := range cfg.ChatIDs {
			r.chatIDs[id] = struct{}{}
		}
	}

	if cfg.MaxSize != "" {
		n, err := sizeunit.Parse(cfg.MaxSize)
		if err != nil {
			return rule{}, fmt.Errorf("max_size: %w", err)
		}
		r.maxSize, r.hasMax = n, true
	}

	return r, nil
}

// Resolve выбирает первое правило, все предикаты которого выполняются,
// и разрешает для него путь и шаблон имени.
func (rs *RuleSet) Resolve(att *domain.Attachment, chatID int64, chatType domain.ChatType) (Resolved, SkipReason) {
	for i, r := range rs.rules {
		if !r.matches(att, chatID, chatType) {
			continue
		}
		c := newChain(r.settings, rs.global)
		path := c.downloadPath()
		if path == "" {
			return Resolved{Rule: i}, SkipNoDownloadPath
		}
		return Resolved{Rule: i, DownloadPath: path, FilePattern: c.filePattern()}, SkipNone
	}
	return Resolved{Rule: -1}, SkipNoRuleMatched
}

func (r rule) matches(att *domain.Attachment, chatID int64, chatType domain.ChatType) bool {
	if r.kind != "" && r.kind != att.Kind {
		return false
	}
	if !r.matchesMime(att.MimeType) {
		return false
	}
	if r.chatTypes != nil {
		if _, ok := r.chatTypes[chatType]; !ok {
			return false
		}
	}
	if r.chatIDs != nil {
		if _, ok := r.chatIDs[chatID]; !ok {
			return false
		}
	}
	if r.hasMax && att.Size > r.maxSize {
		return false
	}
	return true
}

// matchesMime: точное совпадение или совпадение с регулярным выражением.
// Достаточно любого из двух, если заданы оба.
func (r rule) matchesMime(mime string) bool {
	if r.mime == "" && r.mimeRe == nil {
		return true
	}
	if r.mime != "" && r.mime == mime {
		return true
	}
	if r.mimeRe != nil {
		ok, err := r.mimeRe.MatchString(mime)
		return err == nil && ok
	}
	return false
}

// Plan — итоговое решение о скачивании вложения.
type Plan struct {
	Dir      string
	Filename string
}

// Filepath возвращает полный путь к файлу.
func (p Plan) Filepath() string {
	return filepath.Join(p.Dir, p.Filename)
}

// Plan разрешает правила и рендерит имя файла для вложения сообщения.
func (rs *RuleSet) Plan(msg *domain.Message, chatType domain.ChatType) (Plan, SkipReason, error) {
	if msg.Attachment == nil {
		return Plan{}, SkipNoRuleMatched, nil
	}
	res, skip := rs.Resolve(msg.Attachment, msg.ChatID(), chatType)
	if skip != SkipNone {
		return Plan{}, skip, nil
	}
	name, err := Render(res.FilePattern, FilenameVars(msg))
	if err != nil {
		return Plan{}, SkipNone, err
	}
	return Plan{Dir: res.DownloadPath, Filename: name}, SkipNone, nil
}
