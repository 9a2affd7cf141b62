package model

// Template 仿真模板模型，指向对象存储中的rosbag包
type Template struct {
	BaseModel
	Name          string `gorm:"size:100;not null" json:"name"`
	Description   string `gorm:"size:500" json:"description"`
	BagObjectPath string `gorm:"size:255;not null" json:"bagObjectPath"` // 对象存储key
	Topics        string `gorm:"type:text" json:"topics"`                // 逗号分隔的topic列表
}

// TableName 表名
func (Template) TableName() string {
	return "templates"
}
