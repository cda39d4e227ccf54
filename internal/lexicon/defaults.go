package lexicon

import "github.com/hurttlocker/convoscope/internal/dialog"

// Default returns the built-in lexicons for the phone-recycling customer
// service domain. Every call returns freshly allocated slices.
func Default() Bundle {
	return Bundle{
		Roles: RoleLexicon{
			Agent: []string{
				"您好", "感谢", "请问", "祝您", "很高兴为您服务", "请稍等", "亲",
				"已经进入人工服务", "回收宝", "小宝", "客服", "有什么可以帮到您",
			},
			User: []string{
				"怎么", "什么时候", "多久", "多少钱", "谢谢", "我的", "订单号",
				"快递", "物流", "取消", "退款",
			},
		},
		Markers: Markers{
			Greeting:          []string{"您好", "欢迎"},
			Closing:           []string{"感谢", "祝您", "再见"},
			SyntheticGreeting: "您好，欢迎咨询回收宝客服。",
			SyntheticClosing:  "感谢您的咨询，祝您生活愉快！",
		},
		EntityPatterns: defaultEntityPatterns(),
		Domain: Domain{
			Keywords: []WeightedKeyword{
				{"订单", 0.8}, {"物流", 0.7}, {"快递", 0.6}, {"发货", 0.7}, {"收货", 0.7},
				{"退款", 0.8}, {"价格", 0.6}, {"估价", 0.7}, {"检测", 0.7}, {"回收", 0.8},
				{"维修", 0.6}, {"换新", 0.6}, {"保修", 0.5}, {"质量", 0.5}, {"售后", 0.7},
				{"支付", 0.6}, {"付款", 0.6}, {"取消", 0.6}, {"修改", 0.5}, {"投诉", 0.7},
				{"建议", 0.4}, {"手机", 0.5}, {"平板", 0.5}, {"电脑", 0.5}, {"笔记本", 0.5},
				{"相机", 0.5}, {"耳机", 0.4}, {"手表", 0.4},
			},
			StructureGreeting: []string{"您好", "你好"},
			StructureClosing:  []string{"感谢", "谢谢", "再见"},
		},
		Scenarios:     defaultScenarios(),
		Bonuses:       defaultBonuses(),
		Overrides:     defaultOverrides(),
		Context:       defaultContext(),
		Categories:    defaultCategories(),
		TemplateRules: defaultTemplateRules(),
		QuestionWords: []string{
			"什么", "如何", "怎么", "为什么", "哪里", "谁", "何时", "多少",
			"是否", "能否", "可以", "请问",
		},
		Vocabulary: []string{
			"订单号", "单号", "快递单号", "物流单号", "运单号", "手机号",
			"什么时候", "为什么", "怎么办", "多久", "多少", "哪里", "请问",
			"已经", "还是", "没有", "现在", "一下", "帮我", "可以", "能否", "是否",
			"到账", "付款", "支付", "寄出", "收到", "签收", "顺丰", "上门",
			"回收宝", "客服", "人工", "手机", "平板", "电脑", "笔记本", "苹果", "华为",
			"屏幕", "电池", "成色", "维修", "换新", "保修", "账号", "登录", "密码",
			"运费", "邮费", "包装", "报价", "加价", "退回", "退货",
		},
		Stopwords: []string{
			"一个", "这个", "那个", "我们", "你们", "他们", "就是", "然后",
			"这样", "那样", "一下", "的话",
		},
	}
}

func defaultEntityPatterns() []EntityPattern {
	return []EntityPattern{
		{Type: dialog.EntityOrderID, Name: "order_digits", Expr: `\d{18,25}`, Boundary: "digit"},

		{Type: dialog.EntityTrackingNumber, Name: "tracking_labelled", Expr: `(?:快递单号|物流单号|运单号)[:：]?\s*([A-Za-z0-9]{10,15})`, Group: 1, Boundary: "alnum"},
		{Type: dialog.EntityTrackingNumber, Name: "tracking_carrier", Expr: `(?:SF|YT|ZTO)\d{10,12}`, Boundary: "alnum"},
		{Type: dialog.EntityTrackingNumber, Name: "tracking_generic", Expr: `[A-Za-z]{1,5}\d{8,14}`, Boundary: "alnum", Mixed: true},

		{Type: dialog.EntityPhone, Name: "mobile", Expr: `1[3-9]\d{9}`, Boundary: "digit"},

		{Type: dialog.EntityMoney, Name: "money_suffix", Expr: `\d+(?:\.\d+)?(?:元|块钱|块)`, Boundary: "digit"},
		{Type: dialog.EntityMoney, Name: "money_symbol", Expr: `[¥￥]\s*\d+(?:\.\d+)?`},

		{Type: dialog.EntityProduct, Name: "iphone", Expr: `(?i:iphone)\s*\d+(?:\s*(?:Pro Max|Pro|Plus|Max|mini|SE))?`},
		{Type: dialog.EntityProduct, Name: "brand_model", Expr: `(?:华为|荣耀|小米|OPPO|vivo|三星|魅族|一加)\s*[A-Za-z0-9]+(?:\s*(?:Pro|Max|Plus|Ultra|Lite|mini))?`},
		{Type: dialog.EntityProduct, Name: "storage", Expr: `\d+(?:GB|TB)`, Boundary: "digit"},
	}
}

func defaultScenarios() []Scenario {
	return []Scenario{
		{
			ID: "recycle_pricing", Name: "回收估价",
			Keywords: []string{"回收", "估价", "价格", "多少钱", "收购", "卖", "值多少"},
			Intents: []Intent{
				{ID: "price_inquiry", Name: "价格咨询", Keywords: []string{"多少钱", "价格", "报价", "估价", "值多少"}, Cues: []string{"价钱"}},
				{ID: "recycle_condition", Name: "回收条件", Keywords: []string{"回收条件", "能回收吗", "收不收", "要求", "标准"}},
				{ID: "price_increase", Name: "加价咨询", Keywords: []string{"加价", "提价", "价格高", "多给钱"}},
			},
		},
		{
			ID: "shipping", Name: "邮寄流程",
			Keywords: []string{"邮寄", "快递", "物流", "顺丰", "运费", "包装", "寄", "发货"},
			Intents: []Intent{
				{ID: "shipping_query", Name: "物流查询", Keywords: []string{"发货", "发出", "寄出", "快递", "物流", "单号"}, Cues: []string{"什么时候发"}},
				{ID: "delivery_confirm", Name: "签收确认", Keywords: []string{"收到", "签收", "到货", "收货"}},
				{ID: "logistics_issue", Name: "物流异常", Keywords: []string{"延迟", "丢失", "损坏", "没收到", "问题"}},
			},
		},
		{
			ID: "inspection", Name: "验货问题",
			Keywords: []string{"验货", "检测", "质量", "评估", "验机", "检查", "测试"},
			Intents: []Intent{
				{ID: "inspection_result", Name: "检测结果", Keywords: []string{"检测结果", "验货结果", "检测完了吗", "结果"}},
				{ID: "inspection_standard", Name: "检测标准", Keywords: []string{"检测标准", "怎么检测", "验机标准", "标准"}},
				{ID: "inspection_dispute", Name: "检测异议", Keywords: []string{"不同意", "有异议", "不认可", "不对", "错误"}},
			},
		},
		{
			ID: "order_management", Name: "订单管理",
			Keywords: []string{"订单", "下单", "取消", "修改", "查询", "进度", "状态"},
			Intents: []Intent{
				{ID: "order_query", Name: "订单查询", Keywords: []string{"查询", "查订单", "订单状态", "进度", "怎么样了"}, Cues: []string{"订单", "查", "订单号", "状态"}},
				{ID: "order_cancel", Name: "取消订单", Keywords: []string{"取消", "不卖了", "不要了", "撤销", "关闭"}},
				{ID: "order_modify", Name: "修改订单", Keywords: []string{"修改", "变更", "改", "更新", "更改"}},
			},
		},
		{
			ID: "after_sales", Name: "售后服务",
			Keywords: []string{"退款", "投诉", "不满意", "问题", "售后", "赔偿", "退货"},
			Intents: []Intent{
				{ID: "refund_query", Name: "退款查询", Keywords: []string{"退款", "钱", "到账", "退", "返还"}},
				{ID: "complaint", Name: "投诉", Keywords: []string{"投诉", "不满", "差评", "态度", "服务差"}},
				{ID: "feedback", Name: "意见反馈", Keywords: []string{"建议", "意见", "反馈", "改进"}},
			},
		},
		{
			ID: OtherScenario, Name: "其他",
			Intents: []Intent{
				{ID: "greeting", Name: "问候", Keywords: []string{"你好", "您好", "早上好", "下午好", "晚上好"}},
				{ID: "thanks", Name: "感谢", Keywords: []string{"谢谢", "感谢", "多谢", "谢了"}},
				{ID: "farewell", Name: "告别", Keywords: []string{"再见", "拜拜", "goodbye", "88"}},
				{ID: FallbackIntent, Name: "其他查询", Keywords: []string{"怎么", "如何", "是什么", "能不能", "可以吗"}},
			},
		},
	}
}

func defaultBonuses() []Bonus {
	return []Bonus{
		{Scenario: "order_management", Entity: dialog.EntityOrderID, Points: 3},
		{Scenario: "shipping", Entity: dialog.EntityTrackingNumber, Points: 3},
		{Intent: "order_query", Entity: dialog.EntityOrderID, Points: 2},
		{Intent: "shipping_query", Entity: dialog.EntityTrackingNumber, Points: 2},
		{Intent: "order_cancel", Keywords: []string{"取消", "不要了"}, Points: 3},
	}
}

func defaultOverrides() []Override {
	return []Override{
		{Name: "order_cancel_request", Entity: dialog.EntityOrderID, Keywords: []string{"取消", "不要了"}, Intent: "order_cancel", Confidence: 0.9},
		{Name: "order_status_lookup", Entity: dialog.EntityOrderID, Keywords: []string{"查"}, Intent: "order_query", Confidence: 0.9},
		{Name: "delivery_confirmation", Entity: dialog.EntityTrackingNumber, Keywords: []string{"到", "收"}, Intent: "delivery_confirm", Confidence: 0.85},
		{Name: "tracking_lookup", Entity: dialog.EntityTrackingNumber, Intent: "shipping_query", Confidence: 0.85},
	}
}

func defaultContext() ContextLexicon {
	return ContextLexicon{
		Patterns: []ContextPattern{
			{Phrase: "请问是要查询订单", Intent: "order_query", Confidence: 0.8},
			{Phrase: "请问是要取消订单", Intent: "order_cancel", Confidence: 0.8},
			{Phrase: "请问是要查询物流", Intent: "shipping_query", Confidence: 0.8},
			{Phrase: "请问是关于价格的咨询", Intent: "price_inquiry", Confidence: 0.8},
			{Phrase: "请问是关于检测的问题", Intent: "inspection_result", Confidence: 0.8},
			{Phrase: "请问是要退款", Intent: "refund_query", Confidence: 0.8},
			{Phrase: "有什么可以帮到您"},
			{Phrase: "请问有什么能帮到您"},
		},
		Transitions: []string{"另外", "还有", "对了", "顺便问一下", "再问一下", "还想问"},
	}
}

func defaultCategories() []Category {
	return []Category{
		{Name: "产品咨询类/产品功能", Keywords: []string{"功能", "使用", "操作", "特点", "支持"}},
		{Name: "产品咨询类/产品价格", Keywords: []string{"价格", "多少钱", "估价", "报价", "预估"}},
		{Name: "产品咨询类/产品使用", Keywords: []string{"如何使用", "操作方法", "步骤", "指南"}},
		{Name: "产品咨询类/产品比较", Keywords: []string{"对比", "区别", "差异", "比较", "哪个好"}},
		{Name: "服务支持类/账号问题", Keywords: []string{"账号", "登录", "注册", "密码", "绑定"}},
		{Name: "服务支持类/支付问题", Keywords: []string{"支付", "付款", "充值", "提现", "余额"}},
		{Name: "服务支持类/退款问题", Keywords: []string{"退款", "退回", "取消", "申请退", "不想要了"}},
		{Name: "服务支持类/物流问题", Keywords: []string{"快递", "物流", "顺丰", "发货", "收货", "运费", "邮费"}},
		{Name: "技术问题类/系统故障", Keywords: []string{"故障", "错误", "问题", "异常", "失败", "打不开"}},
		{Name: "技术问题类/操作指导", Keywords: []string{"怎么操作", "如何", "步骤", "教程", "指导"}},
		{Name: "技术问题类/兼容性问题", Keywords: []string{"兼容", "支持", "版本", "适配", "系统要求"}},
		{Name: "技术问题类/检测问题", Keywords: []string{"检测", "质检", "评估", "测试", "成色", "验机"}},
		{Name: "业务咨询类/合作咨询", Keywords: []string{"合作", "加盟", "代理", "招商", "渠道"}},
		{Name: "业务咨询类/商务合作", Keywords: []string{"商务", "企业", "批量", "大客户", "定制"}},
		{Name: "其他类/投诉建议", Keywords: []string{"投诉", "意见", "建议", "不满", "差评"}},
		{Name: "其他类/人工服务", Keywords: []string{"人工", "客服", "转人工", "专员", "电话"}},
	}
}

func defaultTemplateRules() []TemplateRule {
	return []TemplateRule{
		{Category: "通用类/开场白", Scenario: "首次回复", Any: []string{"您已经进入人工服务", "已经进入人工服务"}},
		{Category: "服务支持类/查询", Scenario: "订单查询等待", Any: []string{"马上为您查询"}},
		{Category: "通用类/结束语", Scenario: "服务结束满意度收集", Any: []string{"点一下【很满意】", "给客服一个【很满意】的赞"}},
		{Category: "服务支持类/物流", Scenario: "运费政策说明", Any: []string{"运费", "邮费"}},
		{Category: "服务支持类/退回", Scenario: "设备退回道歉", Require: []string{"抱歉"}, Any: []string{"退回", "退货"}},
	}
}
