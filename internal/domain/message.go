package domain

// MailDomain 服务商提供的可用邮箱域名。
type MailDomain struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// Account 服务商侧的邮箱账户。
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// MessageSender 邮件发件人。
type MessageSender struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Message 服务商返回的单封邮件。
//
// 列表接口只带 Intro 摘要，Text 需要单独拉取详情才会填充。
type Message struct {
	ID        string        `json:"id"`
	From      MessageSender `json:"from"`
	Subject   string        `json:"subject"`
	Intro     string        `json:"intro"`
	Text      string        `json:"text"`
	Seen      bool          `json:"seen"`
	CreatedAt string        `json:"createdAt"`
}
