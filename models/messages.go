package models

// Supported values for the lang field of a request.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

type localized struct {
	en string
	zh string
}

var friendlyMessages = map[string]localized{
	ErrCodeInvalidInput: {
		en: "Invalid URL. Please provide a valid Facebook Ad Library link.",
		zh: "链接无效。请输入正确的 Facebook 广告资料库链接。",
	},
	ErrCodeNavTimeout: {
		en: "Parsing timeout, please try again later.",
		zh: "解析超时，请稍后重试。",
	},
	ErrCodeVideoNotFound: {
		en: "Video not found. Possible reasons:\n\n• This is an image ad (not a video ad)\n• The ad has expired or been removed\n• Video did not autoplay\n\nPlease try a different ad link.",
		zh: "无法找到视频。可能的原因：\n\n• 这是图片广告（非视频广告）\n• 广告已过期或被删除\n• 视频未自动播放\n\n请尝试其他广告链接。",
	},
	ErrCodeEngineUnavailable: {
		en: "Service temporarily unavailable, please try again later.",
		zh: "服务暂时不可用，请稍后重试。",
	},
	ErrCodeNavigation: {
		en: "Parsing failed, please check if the link is correct or try again later.",
		zh: "解析失败，请检查链接是否正确或稍后重试。",
	},
	ErrCodeDownloadFailed: {
		en: "Download failed, please try again later.",
		zh: "下载失败，请稍后重试。",
	},
	MsgQuotaGuest: {
		en: "You have reached the daily limit of 5 downloads for guest users.",
		zh: "未登录用户每日限制解析 5 条广告。",
	},
	MsgQuotaUser: {
		en: "You have reached the daily limit of 50 downloads. Please come back tomorrow.",
		zh: "您已达到每日 50 条下载上限，请明天再来。",
	},
}

var genericFailure = localized{
	en: "Parsing failed, please try again later.",
	zh: "解析失败，请稍后重试。",
}

// UserMessage returns the caller-facing message for err.
//
// With an empty lang the stable technical message of the AdError is
// returned. With "en" or "zh" the message comes from a fixed set of
// non-technical texts; internal error detail is never included.
func UserMessage(err *AdError, lang string) string {
	if lang != LangEnglish && lang != LangChinese {
		if err.Message == "" {
			return MsgServerError
		}
		return err.Message
	}

	key := err.Code
	if err.Code == ErrCodeQuotaExceeded {
		key = err.Message
	}
	msg, ok := friendlyMessages[key]
	if !ok {
		msg = genericFailure
	}
	if lang == LangChinese {
		return msg.zh
	}
	return msg.en
}
