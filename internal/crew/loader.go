package crew

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	xerrors "AI-Agency/internal/errors"
)

// definitionsFile 是外部定义文件的顶层结构。
type definitionsFile struct {
	Crews []Definition `yaml:"crews"`
}

// LoadDefinitions 从 YAML 文件读取 crew 定义。
// 文件结构为 crews 列表，定义的合法性由 NewRegistry 统一校验。
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("读取 crew 定义文件 %s 失败", path))
	}

	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, xerrors.Wrap(CodeCrewInvalid, err, fmt.Sprintf("解析 crew 定义文件 %s 失败", path))
	}
	if len(file.Crews) == 0 {
		return nil, xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew 定义文件 %s 中没有任何定义", path))
	}
	return file.Crews, nil
}
