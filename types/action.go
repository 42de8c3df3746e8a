package types

// ActionOutput 动作执行的结构化结果
type ActionOutput struct {
	IsExeSuccess bool     `json:"is_exe_success"`
	Content      string   `json:"content"`
	View         string   `json:"view,omitempty"`
	NextSpeakers []string `json:"next_speakers,omitempty"`

	// 可选的诊断信息
	ResourceType  string `json:"resource_type,omitempty"`
	ResourceValue any    `json:"resource_value,omitempty"`
}

// NewFailedOutput 构造失败结果
func NewFailedOutput(content string) *ActionOutput {
	return &ActionOutput{IsExeSuccess: false, Content: content}
}

// NewSuccessOutput 构造成功结果
func NewSuccessOutput(content string) *ActionOutput {
	return &ActionOutput{IsExeSuccess: true, Content: content}
}

// Clone 拷贝结果
func (o *ActionOutput) Clone() *ActionOutput {
	if o == nil {
		return nil
	}
	c := *o
	if o.NextSpeakers != nil {
		c.NextSpeakers = append([]string(nil), o.NextSpeakers...)
	}
	return &c
}
