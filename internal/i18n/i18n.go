// Package i18n maps (key, language) pairs to display strings. It is a pure
// lookup: unknown languages fall back to English and unknown keys return the
// key itself so missing translations are visible rather than blank.
package i18n

import "agrovision/pkg/domain"

var tables = map[domain.Language]map[string]string{
	domain.LangEnglish: {
		"welcome":      "Healthy Crops, Higher Yields",
		"heroDesc":     "Point your camera at any crop and get an instant AI health report with treatment advice.",
		"camera":       "Open Camera",
		"upload":       "Upload Photo",
		"dashboard":    "Dashboard",
		"history":      "Scan History",
		"resources":    "Resources",
		"chat":         "AI Assistant",
		"pricing":      "Pricing",
		"settings":     "Settings",
		"language":     "Language",
		"identity":     "Profile",
		"alerts":       "Something Went Wrong",
		"upgrade":      "Upgrade to Pro",
		"logout":       "Sign Out",
		"quotaReached": "Weekly scan limit reached. Please upgrade to Pro.",
	},
	domain.LangSpanish: {
		"welcome":      "Cultivos Sanos, Mayores Cosechas",
		"heroDesc":     "Apunta la cámara a cualquier cultivo y recibe al instante un informe de salud con consejos de tratamiento.",
		"camera":       "Abrir Cámara",
		"upload":       "Subir Foto",
		"dashboard":    "Panel",
		"history":      "Historial de Escaneos",
		"resources":    "Recursos",
		"chat":         "Asistente IA",
		"pricing":      "Precios",
		"settings":     "Ajustes",
		"language":     "Idioma",
		"identity":     "Perfil",
		"alerts":       "Algo Salió Mal",
		"upgrade":      "Mejorar a Pro",
		"logout":       "Cerrar Sesión",
		"quotaReached": "Límite semanal de escaneos alcanzado. Actualiza a Pro.",
	},
	domain.LangFrench: {
		"welcome":      "Cultures Saines, Meilleurs Rendements",
		"heroDesc":     "Pointez votre caméra vers une culture et obtenez un bilan de santé instantané avec des conseils de traitement.",
		"camera":       "Ouvrir la Caméra",
		"upload":       "Importer une Photo",
		"dashboard":    "Tableau de Bord",
		"history":      "Historique des Analyses",
		"resources":    "Ressources",
		"chat":         "Assistant IA",
		"pricing":      "Tarifs",
		"settings":     "Paramètres",
		"language":     "Langue",
		"identity":     "Profil",
		"alerts":       "Une Erreur est Survenue",
		"upgrade":      "Passer à Pro",
		"logout":       "Se Déconnecter",
		"quotaReached": "Limite hebdomadaire d'analyses atteinte. Passez à Pro.",
	},
	domain.LangGerman: {
		"welcome":      "Gesunde Pflanzen, Höhere Erträge",
		"heroDesc":     "Richten Sie die Kamera auf eine Pflanze und erhalten Sie sofort einen KI-Gesundheitsbericht mit Behandlungstipps.",
		"camera":       "Kamera Öffnen",
		"upload":       "Foto Hochladen",
		"dashboard":    "Übersicht",
		"history":      "Scan-Verlauf",
		"resources":    "Ressourcen",
		"chat":         "KI-Assistent",
		"pricing":      "Preise",
		"settings":     "Einstellungen",
		"language":     "Sprache",
		"identity":     "Profil",
		"alerts":       "Etwas ist Schiefgelaufen",
		"upgrade":      "Auf Pro Upgraden",
		"logout":       "Abmelden",
		"quotaReached": "Wöchentliches Scan-Limit erreicht. Bitte auf Pro upgraden.",
	},
	domain.LangHindi: {
		"welcome":      "स्वस्थ फसलें, अधिक उपज",
		"heroDesc":     "किसी भी फसल पर कैमरा रखें और तुरंत एआई स्वास्थ्य रिपोर्ट व उपचार सलाह पाएं।",
		"camera":       "कैमरा खोलें",
		"upload":       "फोटो अपलोड करें",
		"dashboard":    "डैशबोर्ड",
		"history":      "स्कैन इतिहास",
		"resources":    "संसाधन",
		"chat":         "एआई सहायक",
		"pricing":      "मूल्य",
		"settings":     "सेटिंग्स",
		"language":     "भाषा",
		"identity":     "प्रोफ़ाइल",
		"alerts":       "कुछ गलत हो गया",
		"upgrade":      "प्रो में अपग्रेड करें",
		"logout":       "साइन आउट",
		"quotaReached": "साप्ताहिक स्कैन सीमा पूरी हो गई। कृपया प्रो में अपग्रेड करें।",
	},
	domain.LangChinese: {
		"welcome":      "作物健康，产量更高",
		"heroDesc":     "将相机对准任何作物，即刻获得 AI 健康报告和防治建议。",
		"camera":       "打开相机",
		"upload":       "上传照片",
		"dashboard":    "仪表盘",
		"history":      "扫描历史",
		"resources":    "资源",
		"chat":         "AI 助手",
		"pricing":      "价格",
		"settings":     "设置",
		"language":     "语言",
		"identity":     "个人资料",
		"alerts":       "出错了",
		"upgrade":      "升级到专业版",
		"logout":       "退出登录",
		"quotaReached": "本周扫描次数已用完，请升级到专业版。",
	},
}

// T resolves key in lang, falling back to English and finally to the key.
func T(key string, lang domain.Language) string {
	if table, ok := tables[lang]; ok {
		if s, ok := table[key]; ok {
			return s
		}
	}
	if s, ok := tables[domain.LangEnglish][key]; ok {
		return s
	}
	return key
}

// Supported reports whether lang has a translation table.
func Supported(lang domain.Language) bool {
	_, ok := tables[lang]
	return ok
}
