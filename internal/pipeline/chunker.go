package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkConfig 表示切块参数不满足 0 <= overlap < maxLen。
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// SplitText 将文本按固定窗口切分，相邻分块重叠 overlap 个字符（按 rune 计）。
// 窗口起点为 0, step, 2*step...，step = maxLen - overlap，直到起点到达文本末尾。
// 末尾不足 overlap 的剩余部分仍会单独成块。
func SplitText(text string, maxLen, overlap int) ([]string, error) {
	if maxLen <= 0 || overlap < 0 || overlap >= maxLen {
		return nil, fmt.Errorf("%w: maxLen=%d, overlap=%d", ErrInvalidChunkConfig, maxLen, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := maxLen - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for i := 0; i < len(runes); i += step {
		end := min(i+maxLen, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks, nil
}
