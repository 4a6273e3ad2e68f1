package dict

// Entry is one item of a dictionary type, e.g. the "Enabled" value of
// "sys_normal_disable".
type Entry struct {
	DictCode  string `json:"dictCode" dynamodbav:"dictCode"`
	DictType  string `json:"dictType" dynamodbav:"dictType"`
	DictLabel string `json:"dictLabel" dynamodbav:"dictLabel"`
	DictValue string `json:"dictValue" dynamodbav:"dictValue"`
	DictSort  int    `json:"dictSort" dynamodbav:"dictSort"`

	// CSSClass and ListClass style the label where it is rendered.
	CSSClass  string `json:"cssClass,omitempty" dynamodbav:"cssClass,omitempty"`
	ListClass string `json:"listClass,omitempty" dynamodbav:"listClass,omitempty"`

	// IsDefault is "Y" for the default value of the type.
	IsDefault string `json:"isDefault,omitempty" dynamodbav:"isDefault,omitempty"`
	Remark    string `json:"remark,omitempty" dynamodbav:"remark,omitempty"`
}

// Option is a label/value pair for select inputs.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`

	// TagType carries the entry's ListClass for tag rendering.
	TagType string `json:"tagType,omitempty"`
}

// LabelFrom returns the label of the entry whose value is value.
func LabelFrom(value string, entries []Entry) (string, bool) {
	for _, e := range entries {
		if e.DictValue == value {
			return e.DictLabel, true
		}
	}
	return "", false
}
