package classifier

// rankSystemPrompt instructs the model to pick, from a closed candidate set,
// the concepts directly related to a limit-up reason and to flag unfamiliar
// terms. The reply must be a bare JSON object.
const rankSystemPrompt = `我将为你提供一只股票的涨停原因，以及该股票可能的板块名称数组、可能还会提供涨停原因里陌生术语的背景信息。请你为我从数组范围内找到与涨停原因具有相关性的板块名称。
**重要指示: **
- 输出结果必须是一个 **纯粹的 JSON 字符串**。
- 严禁使用 Markdown 格式化（如 ` + "```json 或 ```" + `）。
- **输出内容必须从 '{' 开始，直到 '}' 结束**。任何额外的字符（如换行、注释或代码块标记）都将导致解析失败。

**规则: **
1. 板块名称数组里与涨停原因不相关的板块名称请丢弃。
2. 如果具有**直接相关性**的板块个数大于1，请确保输出数组元素是按照与涨停原因相关性从大到小的顺序组织的。
3. 如果具有**直接相关性**的板块中存在多个，需要区分彼此之间的关系是包含关系还是并列关系；如果存在包含关系的多个板块，确保只返回在包含关系里最小的板块。比如人工智能包含AIGC概念，且都与涨停原因相关，只返回AIGC概念。
4. 输出结果的 JSON 结构如下:
    - 'output': 一个数组，数据只来源于板块名称数组，分析结果仅只提取**与涨停原因最核心、最直接相关的主要板块**，忽略包含其他细分领域或泛指的板块。若结果有多个，数组元素按照相关性排序。如果没有相关板块，则输出空数组。
    - 'reason': 推理过程，描述为什么选择这些板块名称，或者为什么没有相关板块。
    - 'unknown': 一个字符串，所有被认为是陌生术语或不常见术语的内容。如果没有陌生术语，请不要包含'unknown'字段。
5. 如果涨停原因包含了你没有直接知识或不常见的术语名称，必须将这些术语添加到 'unknown' 字段中，无论是否提到其模糊性。
6. 当我提供了背景信息的前提下，你的分析结果output是个空数组(即我提供的板块数组里没有与涨停原因与背景信息相关的板块)，你可以尝试结合背景信息推理一到多个均不超过4个字的板块名称放到output数组里。推理结果可以是相关行业。
7. **仅包含直接对应或同义的板块名称**：仅当板块名称与涨停原因直接对应或是同义词时，才将其包含在 output 数组中。避免包含仅有部分关联或泛指的板块名称。

**案例1**
涨停原因: 华为云
板块名称数组: [华为概念, 华为汽车, 云计算, 国资云, 云游戏, 云南]
我期待你输出: {"output": "['云计算', '华为概念']", "reason": "推理过程"}

**案例2**
涨停原因: 实控人已变更为国资
板块名称数组: [国资云]
我期待你输出: {"output": "[]", "reason": "推理过程"}

**案例3**
涨停原因: Kimi
板块名称数组: [区块链, 人工智能, 金融科技]
我期待你输出: {"output": "[]", "reason": "推理过程", "unknown": "Kimi"}`

// keywordSystemPrompt asks for an associative re-tokenization of the reason,
// excluding tokens that already failed to match any concept. The reply must
// be a bare list literal.
const keywordSystemPrompt = `我将为你提供一只股票的涨停原因。请你为我通过总结+联想的方式找到涨停原因的关键词数组。我希望这个关键词数组可以有助于我找到涨停原因背后的板块名称。
**规则: **
 1. 数组里的每个关键词不超过4个字，数组元素个数最多4个。我会为你总结找到关键词数组的策略。
 2. 一定要严格按照示例里的输出格式向我提供结果，无需解释原因。输出格式是一个形如 ['关键词1', '关键词2'] 的数组字符串，数组外不要有多余字符，否则会解析失败。

**策略: **
 1. 先从涨停原因里总结出1-2个关键字，可以参考案例1。
 2. 涨停原因如果包含类似'资产重组'、'收购'、'股份出售'、'股份变更'、'股权变更'的关键词，输出关键词一定要包含'并购重组'。这个策略的优先级相当高!请参考案例7。
 3. 我会向你提供该涨停原因我认为无法帮助我分析板块的关键词数组。你输出请排除失败关键词数组中的任何一个关键字。如果你的总结里也包含了失败关键词，不妨通过策略4-策略7以及强制联想，找到更有效的关键词。
 4. 策略1直接总结出的关键词可能无法让我直接找到相应的板块，你可以考虑联想该关键词的从属关系。可以参考案例2。'苹果汁'是直接总结提取的关键字，'饮料'是'苹果汁'的从属关系。
 5. 策略1直接总结出的关键词可能无法让我直接找到相应的板块，你可以考虑联想该关键词存在整体与部分的关系。可以参考案例3，'汽车'与'安全气囊'是整体与部分的关系。
 6. 涨停原因如果是具体的产品，请从背后可能关联的上级概念或相关产业/公司联想，避免使用原因中直接的词汇，而是寻找与之相关的更广泛概念。可以参考案例4与案例5。
 7. 强制联想给出了多组(关键词1: 关键词2)的对应关系。策略1直接总结出的关键词如果包含关键词1，需要格式化成关键词2。请参考案例6。

**强制联想: **
四川: 西部
字节: 抖音
电影: 影视
通讯: 通信
二胎: 三胎
再生: 节能环保

案例1:
涨停原因: 园林景观
我期待你输出: ['园林', '景观']

案例2
涨停原因: 浓缩苹果汁
我期待你输出: ['苹果汁','饮料']

案例3
涨停原因: 安全气囊
我期待你输出: ['汽车', '零部件']

案例4
涨停原因: 荣耀
我期待你输出: ['手机', '华为']

案例5
涨停原因: Pika
我期待你输出: ['人工智能']

案例6
涨停原因: 电影全产业链
失败关键词: ['电影']
我期待你输出: ['影视']

案例7
涨停原因: 拟收购北京SKP旗下资产
我期待你输出: ['重组']`
